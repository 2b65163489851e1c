package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/loykin/launchcheck/internal/sysproc"
	"github.com/loykin/launchcheck/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDiff(t *testing.T) {
	ctx := context.Background()
	table := sysproc.NewFake(sysproc.Info{PID: 1, Name: "init"}, sysproc.Info{PID: 10, Name: "shell"})

	base, err := CaptureProcesses(ctx, table)
	require.NoError(t, err)

	table.Add(sysproc.Info{PID: 30, PPID: 10, Name: "b"}, sysproc.Info{PID: 20, PPID: 10, Name: "a"})
	table.Remove(1)

	cur, err := CaptureProcesses(ctx, table)
	require.NoError(t, err)

	got := NewProcesses(base, cur)
	require.Len(t, got, 2)
	assert.Equal(t, int32(20), got[0].PID)
	assert.Equal(t, int32(30), got[1].PID)
	assert.Empty(t, NewProcesses(cur, cur))
}

func TestWindowDiff(t *testing.T) {
	ctx := context.Background()
	sys := window.NewFake(window.Window{Handle: 1, Title: "Desktop", PID: 1})

	base, err := CaptureWindows(ctx, sys)
	require.NoError(t, err)

	sys.Add(window.Window{Handle: 9, Title: "Calculator", PID: 50})
	cur, err := CaptureWindows(ctx, sys)
	require.NoError(t, err)

	assert.Equal(t, []window.Window{{Handle: 9, Title: "Calculator", PID: 50}}, NewWindows(base, cur))
}

type failingTable struct{ sysproc.Table }

func (failingTable) List(context.Context) ([]sysproc.Info, error) { return nil, errors.New("denied") }

type unsupported struct{ window.System }

func (unsupported) List(context.Context) ([]window.Window, error) { return nil, window.ErrUnsupported }

func TestCaptureErrors(t *testing.T) {
	ctx := context.Background()
	_, err := CaptureProcesses(ctx, failingTable{})
	assert.Error(t, err)

	snap, err := CaptureWindows(ctx, unsupported{})
	require.NoError(t, err)
	assert.Empty(t, snap)
}
