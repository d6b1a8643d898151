package command

import (
	"os/exec"
	"sync"
	"time"
)

// killGrace is how long a terminated process gets to exit before SIGKILL.
const killGrace = 2 * time.Second

// Handle wraps one running external process. The run controller keeps the
// handle so a cancel request can reach the process directly, independent of
// the worker that spawned it.
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
}

func newHandle(cmd *exec.Cmd) *Handle {
	return &Handle{cmd: cmd, done: make(chan struct{})}
}

// markDone records that the process has been reaped. Idempotent.
func (h *Handle) markDone() {
	h.once.Do(func() { close(h.done) })
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Pid returns the process id, or 0 before the process started.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Terminate asks the process group to exit and returns immediately. If the
// process is still alive after the grace window it is forcibly killed.
// Safe to call more than once and from any goroutine.
func (h *Handle) Terminate() {
	if !h.Alive() {
		return
	}
	_ = terminateGroup(h.cmd)
	go func() {
		select {
		case <-h.done:
		case <-time.After(killGrace):
			_ = killGroup(h.cmd)
		}
	}()
}
