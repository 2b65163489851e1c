// Package launcher asks the desktop shell to open a launcher file the way
// a double click would.
package launcher

import (
	"context"
	"sync"
)

// Launcher opens a launcher without waiting for the application it starts.
type Launcher interface {
	Open(ctx context.Context, path string) error
}

// Fake records opened paths and optionally runs a hook that simulates the
// application appearing.
type Fake struct {
	mu     sync.Mutex
	opened []string
	Err    error
	OnOpen func(path string)
}

func (f *Fake) Open(_ context.Context, path string) error {
	f.mu.Lock()
	f.opened = append(f.opened, path)
	hook, err := f.OnOpen, f.Err
	f.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	return err
}

func (f *Fake) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}
