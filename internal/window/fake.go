package window

import (
	"context"
	"sort"
	"sync"
)

// Fake is an in-memory System for tests.
type Fake struct {
	mu     sync.Mutex
	wins   map[uintptr]Window
	errs   map[uintptr]error
	closed []Window
	// OnClose runs after a window is removed, outside the lock.
	OnClose func(w Window)
}

func NewFake(wins ...Window) *Fake {
	f := &Fake{wins: map[uintptr]Window{}, errs: map[uintptr]error{}}
	for _, w := range wins {
		f.wins[w.Handle] = w
	}
	return f
}

func (f *Fake) Add(wins ...Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range wins {
		f.wins[w.Handle] = w
	}
}

func (f *Fake) Remove(handle uintptr) {
	f.mu.Lock()
	delete(f.wins, handle)
	f.mu.Unlock()
}

// SetError makes Close on handle fail with err and leave the window open.
func (f *Fake) SetError(handle uintptr, err error) {
	f.mu.Lock()
	f.errs[handle] = err
	f.mu.Unlock()
}

// Closed returns the windows closed so far, in order.
func (f *Fake) Closed() []Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Window(nil), f.closed...)
}

func (f *Fake) List(context.Context) ([]Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Window, 0, len(f.wins))
	for _, w := range f.wins {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (f *Fake) Close(_ context.Context, w Window) error {
	f.mu.Lock()
	if err := f.errs[w.Handle]; err != nil {
		f.mu.Unlock()
		return err
	}
	cur, ok := f.wins[w.Handle]
	if !ok {
		f.mu.Unlock()
		return ErrGone
	}
	delete(f.wins, w.Handle)
	f.closed = append(f.closed, cur)
	hook := f.OnClose
	f.mu.Unlock()
	if hook != nil {
		hook(cur)
	}
	return nil
}
