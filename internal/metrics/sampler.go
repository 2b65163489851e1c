package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// AppSample is a resource reading of a launched application.
type AppSample struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	NumThreads int32   `json:"num_threads"`
	CPUPercent float64 `json:"cpu_percent"`
}

// SampleApp reads memory, threads and CPU of pid and publishes them under
// the app label. The reading is returned even when metrics are not
// registered.
func SampleApp(ctx context.Context, app string, pid int32) (AppSample, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return AppSample{}, fmt.Errorf("sample pid %d: %w", pid, err)
	}
	s := AppSample{PID: pid}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return AppSample{}, fmt.Errorf("sample pid %d memory: %w", pid, err)
	}
	s.RSSBytes = mem.RSS
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		s.NumThreads = n
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		s.CPUPercent = cpu
	}
	if regOK.Load() {
		appRSS.WithLabelValues(app).Set(float64(s.RSSBytes))
		appThreads.WithLabelValues(app).Set(float64(s.NumThreads))
	}
	return s, nil
}
