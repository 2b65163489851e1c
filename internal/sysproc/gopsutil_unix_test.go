//go:build !windows

package sysproc

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGopsTableTerminateChild(t *testing.T) {
	ctx := context.Background()
	// #nosec G204
	cmd := exec.Command("/bin/sh", "-c", "sleep 30")
	require.NoError(t, cmd.Start())
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	pid := int32(cmd.Process.Pid)

	tbl := NewGopsTable()
	info, ok := tbl.Lookup(ctx, pid)
	require.True(t, ok)
	assert.Equal(t, pid, info.PID)

	require.NoError(t, tbl.Terminate(ctx, pid))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("child did not exit after Terminate")
	}
	assert.False(t, tbl.Running(ctx, pid))
	assert.ErrorIs(t, tbl.Kill(ctx, pid), ErrGone)
}
