package history

import (
	"context"
	"time"

	"github.com/loykin/launchcheck/internal/result"
)

// Event is one finished test case, exported to external systems.
type Event struct {
	RunID      string            `json:"run_id"`
	Seq        int               `json:"seq"`
	OccurredAt time.Time         `json:"occurred_at"`
	Result     result.TestResult `json:"result"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Row is the flat shape the table-oriented sinks store.
type Row struct {
	RunID                 string
	Seq                   int
	OccurredAt            time.Time
	Name                  string
	Launcher              string
	ExpectedExecutable    string
	Status                string
	Remarks               string
	AssociatedWindows     string
	TerminatedExecutables string
	ClosedWindows         string
	DetectedBy            string
	DurationMillis        int64
}

// Flatten renders e with list cells joined the way the report does.
func Flatten(e Event) Row {
	r := e.Result
	return Row{
		RunID:                 e.RunID,
		Seq:                   e.Seq,
		OccurredAt:            e.OccurredAt.UTC(),
		Name:                  r.Name,
		Launcher:              r.LauncherFileName,
		ExpectedExecutable:    r.ExpectedExecutableName,
		Status:                r.Status.String(),
		Remarks:               r.Remarks,
		AssociatedWindows:     result.JoinCell(r.AssociatedWindowTitles),
		TerminatedExecutables: result.JoinCell(r.TerminatedExecutableNames),
		ClosedWindows:         result.JoinCell(r.ClosedWindowTitles),
		DetectedBy:            r.DetectedBy,
		DurationMillis:        r.Duration.Milliseconds(),
	}
}
