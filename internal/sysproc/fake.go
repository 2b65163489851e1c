package sysproc

import (
	"context"
	"sort"
	"sync"
)

// Fake is an in-memory Table for tests. Terminate and Kill remove the
// process unless it is marked stubborn (ignores Terminate) or an error is
// configured for it.
type Fake struct {
	mu       sync.Mutex
	procs    map[int32]Info
	stubborn map[int32]bool
	errs     map[int32]error
	signals  []Signal
	// OnSignal runs after a successful Terminate or Kill, outside the lock.
	OnSignal func(s Signal)
}

// Signal records one Terminate/Kill call against the fake.
type Signal struct {
	PID  int32
	Name string
	Kill bool
}

func NewFake(procs ...Info) *Fake {
	f := &Fake{
		procs:    make(map[int32]Info),
		stubborn: make(map[int32]bool),
		errs:     make(map[int32]error),
	}
	for _, p := range procs {
		f.procs[p.PID] = p
	}
	return f
}

func (f *Fake) Add(procs ...Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range procs {
		f.procs[p.PID] = p
	}
}

func (f *Fake) Remove(pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.procs, pid)
}

// SetStubborn makes Terminate a no-op for pid; only Kill removes it.
func (f *Fake) SetStubborn(pid int32) {
	f.mu.Lock()
	f.stubborn[pid] = true
	f.mu.Unlock()
}

// SetError makes every signal to pid fail with err.
func (f *Fake) SetError(pid int32, err error) {
	f.mu.Lock()
	f.errs[pid] = err
	f.mu.Unlock()
}

// Signals returns every signal delivered so far.
func (f *Fake) Signals() []Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Signal(nil), f.signals...)
}

func (f *Fake) List(context.Context) ([]Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Info, 0, len(f.procs))
	for _, p := range f.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (f *Fake) Lookup(_ context.Context, pid int32) (Info, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	return p, ok
}

func (f *Fake) Terminate(_ context.Context, pid int32) error { return f.signal(pid, false) }
func (f *Fake) Kill(_ context.Context, pid int32) error      { return f.signal(pid, true) }

func (f *Fake) Running(_ context.Context, pid int32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.procs[pid]
	return ok
}

func (f *Fake) signal(pid int32, kill bool) error {
	f.mu.Lock()
	if err, ok := f.errs[pid]; ok {
		f.mu.Unlock()
		return err
	}
	p, ok := f.procs[pid]
	if !ok {
		f.mu.Unlock()
		return ErrGone
	}
	s := Signal{PID: pid, Name: p.Name, Kill: kill}
	f.signals = append(f.signals, s)
	if kill || !f.stubborn[pid] {
		delete(f.procs, pid)
	}
	hook := f.OnSignal
	f.mu.Unlock()
	if hook != nil {
		hook(s)
	}
	return nil
}
