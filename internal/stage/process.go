package stage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"video2notes/internal/services"
)

// DefaultGrace is the time a process group gets between SIGTERM and SIGKILL.
const DefaultGrace = 10 * time.Second

// Runner executes external commands for a stage. Each command runs in its own
// process group so the whole tree can be signalled. Cancel stops the running
// command and makes further Run calls fail until Reset.
type Runner struct {
	Grace time.Duration

	tail    *Tail
	mu      sync.Mutex
	active  *process
	stopped bool
}

type process struct {
	cmd        *exec.Cmd
	done       chan struct{}
	terminated atomic.Bool
}

// NewRunner returns a Runner keeping tailLines of output for error reports.
func NewRunner(grace time.Duration, tailLines int) *Runner {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Runner{Grace: grace, tail: NewTail(tailLines)}
}

// Reset clears the cancelled flag and captured output before a new Execute.
func (r *Runner) Reset() {
	r.mu.Lock()
	r.stopped = false
	r.mu.Unlock()
	r.tail.Reset()
}

// Tail returns the most recent output lines across commands.
func (r *Runner) Tail() []string {
	return r.tail.Lines()
}

// Run executes name with args, streaming combined stdout/stderr lines to
// onLine (which may be nil).
func (r *Runner) Run(ctx context.Context, onLine func(string), name string, args ...string) error {
	_, err := r.exec(ctx, onLine, false, name, args...)
	return err
}

// Output executes name with args and returns stdout. stderr lines are
// captured in the tail only.
func (r *Runner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.exec(ctx, nil, true, name, args...)
}

// Cancel terminates the active command, if any, and blocks future commands.
func (r *Runner) Cancel() {
	r.mu.Lock()
	r.stopped = true
	active := r.active
	r.mu.Unlock()
	if active != nil {
		r.terminate(active)
	}
}

func (r *Runner) exec(ctx context.Context, onLine func(string), capture bool, name string, args ...string) ([]byte, error) {
	op := filepath.Base(name)
	if r.isStopped() {
		return nil, services.Wrap(services.ErrCancelled, "", op, "stage cancelled", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "", op, "", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd := exec.Command(name, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	var stdout bytes.Buffer
	if capture {
		cmd.Stdout = &stdout
	} else {
		cmd.Stdout = pw
	}
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, services.Wrap(services.ErrExternalTool, "", op, "start command", err)
	}
	_ = pw.Close()

	proc := &process{cmd: cmd, done: make(chan struct{})}
	r.setActive(proc)
	defer r.clearActive(proc)

	linesDone := make(chan struct{})
	go func() {
		defer close(linesDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(scanLinesOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			r.tail.Add(line)
			if onLine != nil {
				onLine(line)
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			r.terminate(proc)
		case <-proc.done:
		}
	}()

	waitErr := cmd.Wait()
	close(proc.done)
	<-linesDone
	_ = pr.Close()

	if proc.terminated.Load() || ctx.Err() != nil {
		return nil, services.Wrap(services.ErrCancelled, "", op, "process terminated", ctx.Err())
	}
	if waitErr != nil {
		return nil, &services.StageError{
			Operation: op,
			LogTail:   r.Tail(),
			Err:       fmt.Errorf("%w: %w", services.ErrExternalTool, waitErr),
		}
	}
	return stdout.Bytes(), nil
}

// terminate sends SIGTERM to the process group and escalates to SIGKILL if the
// group has not exited after the grace period.
func (r *Runner) terminate(proc *process) {
	if proc == nil || proc.cmd.Process == nil {
		return
	}
	if !proc.terminated.CompareAndSwap(false, true) {
		return
	}
	pgid := proc.cmd.Process.Pid
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		_ = unix.Kill(-pgid, unix.SIGKILL)
		return
	}
	go func() {
		timer := time.NewTimer(r.Grace)
		defer timer.Stop()
		select {
		case <-proc.done:
		case <-timer.C:
			_ = unix.Kill(-pgid, unix.SIGKILL)
		}
	}()
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Runner) setActive(proc *process) {
	r.mu.Lock()
	r.active = proc
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		r.terminate(proc)
	}
}

func (r *Runner) clearActive(proc *process) {
	r.mu.Lock()
	if r.active == proc {
		r.active = nil
	}
	r.mu.Unlock()
}

// scanLinesOrCR splits on \n, \r\n, or a bare \r so progress meters that
// rewrite a single line still produce discrete updates.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		switch b {
		case '\n':
			return i + 1, bytes.TrimRight(data[:i], "\r"), nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			return 0, nil, nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
