package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/launchcheck/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr (host:port of the native protocol) and creates
// table when it does not exist.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id String,
		seq UInt32,
		occurred_at DateTime64(3),
		name String,
		launcher String,
		expected_executable String,
		status LowCardinality(String),
		remarks String,
		associated_windows String,
		terminated_executables String,
		closed_windows String,
		detected_by LowCardinality(String),
		duration_ms Int64
	) ENGINE = MergeTree()
	ORDER BY (occurred_at, run_id, seq)`, s.table)
	if err := s.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	r := history.Flatten(e)
	query := fmt.Sprintf(`INSERT INTO %s (run_id, seq, occurred_at, name, launcher, expected_executable, status, remarks, associated_windows, terminated_executables, closed_windows, detected_by, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		r.RunID,
		uint32(r.Seq),
		r.OccurredAt,
		r.Name,
		r.Launcher,
		r.ExpectedExecutable,
		r.Status,
		r.Remarks,
		r.AssociatedWindows,
		r.TerminatedExecutables,
		r.ClosedWindows,
		r.DetectedBy,
		r.DurationMillis,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
