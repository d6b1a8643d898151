// Package command runs external processes for pipeline steps with live log
// streaming and cooperative cancellation.
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/lei/pipehost/internal/runlog"
)

// Reserved exit codes. CodeAborted is distinct from anything a process can
// return through a normal exit.
const (
	CodeAborted  = -1
	CodeFailure  = 1
	CodeNotFound = 127
)

// readChunk is the pipe read size. Small enough to keep streaming latency
// low for chatty tools.
const readChunk = 1024

// Spec describes one command invocation. Exactly one of Shell or Argv must
// be set: Shell is interpreted by "sh -c", Argv is executed directly.
type Spec struct {
	Shell string
	Argv  []string
	Dir   string
}

// Display returns the command as shown in the run log.
func (s Spec) Display() string {
	if s.Shell != "" {
		return s.Shell
	}
	quoted := make([]string, len(s.Argv))
	for i, arg := range s.Argv {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func (s Spec) empty() bool {
	return s.Shell == "" && len(s.Argv) == 0
}

func (s Spec) program() string {
	if len(s.Argv) > 0 {
		return s.Argv[0]
	}
	fields := strings.Fields(s.Shell)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\"'\\$&|;<>()*?[]#~%!{}") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

type options struct {
	onStart func(*Handle)
	dir     string
}

// Option configures a Run invocation.
type Option func(*options)

// WithOnStart registers a callback invoked synchronously once the process
// exists, before any output is read. The run controller uses it to hold the
// handle for external cancellation.
func WithOnStart(fn func(*Handle)) Option {
	return func(o *options) { o.onStart = fn }
}

// WithDir sets the working directory, overriding Spec.Dir.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// Run executes the command with merged stdout/stderr streamed into the run
// log. It returns the process exit code, CodeAborted when ctx is cancelled,
// CodeNotFound when the executable is missing, or CodeFailure on any other
// spawn or read error. Retrying is the caller's business.
func Run(ctx context.Context, spec Spec, log *runlog.Logger, opts ...Option) int {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if spec.empty() {
		log.Error("Empty command.")
		return CodeFailure
	}

	log.Command(spec.Display())

	var cmd *exec.Cmd
	if spec.Shell != "" {
		cmd = exec.Command("sh", "-c", spec.Shell)
	} else {
		cmd = exec.Command(spec.Argv[0], spec.Argv[1:]...)
	}
	cmd.Dir = spec.Dir
	if o.dir != "" {
		cmd.Dir = o.dir
	}
	cmd.Env = os.Environ()
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Errorf("Failed to execute command: %v", err)
		return CodeFailure
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			log.Errorf("Command not found: %s", spec.program())
			return CodeNotFound
		}
		log.Errorf("Failed to execute command: %v", err)
		return CodeFailure
	}

	handle := newHandle(cmd)
	if o.onStart != nil {
		o.onStart(handle)
	}

	chunks := make(chan []byte, 8)
	go func() {
		defer close(chunks)
		buf := make([]byte, readChunk)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	dec := newStreamDecoder()
	emit := func(text string) {
		if trimmed := strings.TrimRight(text, " \t\r\n"); trimmed != "" {
			log.Plain(trimmed)
		}
	}

	for {
		select {
		case <-ctx.Done():
			handle.Terminate()
			// Reap in the background; the caller gets the aborted code
			// without waiting for the process to wind down.
			go func() {
				for range chunks {
				}
				_ = cmd.Wait()
				handle.markDone()
			}()
			log.Warning("Terminated by user.")
			return CodeAborted

		case chunk, ok := <-chunks:
			if !ok {
				emit(dec.decode(nil, true))
				waitErr := cmd.Wait()
				handle.markDone()
				return exitCode(waitErr, cmd, log)
			}
			emit(dec.decode(chunk, false))
		}
	}
}

func exitCode(waitErr error, cmd *exec.Cmd, log *runlog.Logger) int {
	if waitErr == nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	log.Error(fmt.Sprintf("Failed to execute command: %v", waitErr))
	return CodeFailure
}
