package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/launchcheck/internal/history"
)

// Sink sends events to OpenSearch via HTTP.
// It constructs URL as: baseURL + "/" + index + "/_doc" and POSTs JSON body.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document is the indexed shape; list fields stay arrays so they can be
// aggregated on.
type document struct {
	RunID      string   `json:"run_id"`
	Seq        int      `json:"seq"`
	Timestamp  string   `json:"@timestamp"`
	Name       string   `json:"name"`
	Launcher   string   `json:"launcher"`
	Expected   string   `json:"expected_executable"`
	Status     string   `json:"status"`
	Remarks    string   `json:"remarks"`
	Windows    []string `json:"associated_windows"`
	Terminated []string `json:"terminated_executables"`
	Closed     []string `json:"closed_windows"`
	DetectedBy string   `json:"detected_by,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	r := e.Result
	doc := document{
		RunID:      e.RunID,
		Seq:        e.Seq,
		Timestamp:  e.OccurredAt.UTC().Format(time.RFC3339Nano),
		Name:       r.Name,
		Launcher:   r.LauncherFileName,
		Expected:   r.ExpectedExecutableName,
		Status:     r.Status.String(),
		Remarks:    r.Remarks,
		Windows:    r.AssociatedWindowTitles,
		Terminated: r.TerminatedExecutableNames,
		Closed:     r.ClosedWindowTitles,
		DetectedBy: r.DetectedBy,
		DurationMS: r.Duration.Milliseconds(),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/_doc/%s-%d", s.baseURL, s.index, e.RunID, e.Seq)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
