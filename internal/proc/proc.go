package proc

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/TheEdward162/thermobench/internal/errors"
	"github.com/TheEdward162/thermobench/internal/logger"
)

// State tracks a child through its lifetime.
type State int

const (
	Starting State = iota
	Running
	Exited
	Killed
)

// Keep at most this many complete stdout lines between polls. The
// sampling policy is most-recent-wins, so overflow drops the oldest.
const lineBufferCap = 1024

// Cut a single stdout line at this length and discard the remainder,
// so one runaway writer can neither exhaust memory nor stop the
// reader from draining the pipe.
const maxLineBytes = 1 << 20

// Child is one spawned process: the benchmark, an exec sensor, or the
// fan command. Children run in their own process group so signals
// reach everything they fork.
type Child struct {
	cmd  *exec.Cmd
	argv []string
	done chan struct{}

	mu       sync.Mutex
	lines    []string
	state    State
	exitCode int
}

// Supervisor spawns and tracks child processes.
type Supervisor struct {
	mu       sync.Mutex
	children []*Child
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Spawn starts argv[0] with the remaining arguments. With
// captureStdout the child's stdout is read asynchronously line by
// line; Poll returns the lines without ever blocking the caller.
// stderr always passes through to ours.
func (s *Supervisor) Spawn(argv []string, captureStdout bool) (*Child, error) {
	cmd := exec.Command(argv[0], argv[1:]...)

	return s.start(cmd, argv, captureStdout)
}

// SpawnShell runs a command line through the shell. Used for exec
// sensors and the fan command, whose specs are free-form strings.
func (s *Supervisor) SpawnShell(cmdline string, captureStdout bool) (*Child, error) {
	cmd := exec.Command("sh", "-c", cmdline)

	return s.start(cmd, []string{"sh", "-c", cmdline}, captureStdout)
}

func (s *Supervisor) start(cmd *exec.Cmd, argv []string, captureStdout bool) (*Child, error) {
	errFactory := errors.New()

	cmd.Stderr = os.Stderr
	// Own process group, so termination signals reach the child's
	// children too (negative PID targets the whole group).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	child := &Child{
		cmd:      cmd,
		argv:     argv,
		done:     make(chan struct{}),
		state:    Starting,
		exitCode: -1,
	}

	var pipe *bufio.Reader
	if captureStdout {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrSpawnFailed, err)
		}
		pipe = bufio.NewReader(stdout)
	}

	if err := cmd.Start(); err != nil {
		return nil, errFactory.Wrap(errors.ErrSpawnFailed, err)
	}

	child.mu.Lock()
	child.state = Running
	child.mu.Unlock()

	go child.reader(pipe)

	s.mu.Lock()
	s.children = append(s.children, child)
	s.mu.Unlock()

	return child, nil
}

// reader drains the stdout pipe until EOF, then reaps the child. Runs
// in its own goroutine; the sampling loop only ever touches the line
// buffer under the mutex.
func (c *Child) reader(pipe *bufio.Reader) {
	if pipe != nil {
		for {
			line, truncated, rerr := readLine(pipe)
			if truncated {
				logger.Warn().Strs("argv", c.argv).Int("limit", maxLineBytes).Msg("stdout line truncated")
			}
			if rerr != nil {
				if line != "" {
					c.push(line)
				}
				if rerr != io.EOF {
					logger.Warn().Err(rerr).Strs("argv", c.argv).Msg("stdout read failed")
				}
				break
			}
			c.push(line)
		}
	}

	err := c.cmd.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Exited
	if c.cmd.ProcessState != nil {
		c.exitCode = c.cmd.ProcessState.ExitCode()
		if status, ok := c.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			c.state = Killed
		}
	}
	if err != nil && c.state == Exited && c.exitCode < 0 {
		logger.Debug().Strs("argv", c.argv).Err(err).Msg("child wait failed")
	}
	close(c.done)
}

func (c *Child) push(line string) {
	c.mu.Lock()
	if len(c.lines) >= lineBufferCap {
		c.lines = c.lines[1:]
	}
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// readLine returns the next line without its terminator. A line longer
// than maxLineBytes is cut there and the rest discarded, so the pipe
// keeps draining past it.
func readLine(r *bufio.Reader) (line string, truncated bool, err error) {
	var buf []byte
	for {
		frag, ferr := r.ReadSlice('\n')
		if len(buf) < maxLineBytes {
			buf = append(buf, frag...)
			if len(buf) > maxLineBytes {
				buf = buf[:maxLineBytes]
				truncated = true
			}
		} else if len(frag) > 0 {
			truncated = true
		}
		if ferr == bufio.ErrBufferFull {
			continue
		}

		line = strings.TrimSuffix(strings.TrimSuffix(string(buf), "\n"), "\r")

		return line, truncated, ferr
	}
}

// Poll returns all complete stdout lines buffered since the previous
// poll. Never blocks; an empty slice means no new output this tick.
func (c *Child) Poll() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := c.lines
	c.lines = nil

	return lines
}

// Done is closed once the child has been reaped.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Alive reports whether the child has not yet exited.
func (c *Child) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// State returns the current lifecycle state.
func (c *Child) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// ExitCode returns the child's exit code, or -1 if it was signaled or
// has not exited yet.
func (c *Child) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exitCode
}

func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

// Terminate sends SIGTERM to the child's process group.
func (c *Child) Terminate() error {
	return c.signal(syscall.SIGTERM)
}

// Kill sends SIGKILL to the child's process group.
func (c *Child) Kill() error {
	return c.signal(syscall.SIGKILL)
}

func (c *Child) signal(sig syscall.Signal) error {
	if !c.Alive() {
		return nil
	}

	if err := syscall.Kill(-c.Pid(), sig); err != nil {
		// The group may be gone between the Alive check and the kill.
		if err == syscall.ESRCH {
			return nil
		}

		return errors.New().Wrap(errors.ErrSignalFailed, err)
	}

	return nil
}

// Wait blocks until the child exits or the timeout elapses. A zero
// timeout waits forever. Reports whether the child exited.
func (c *Child) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-c.done
		return true
	}

	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Shutdown applies graceful-then-forced escalation: SIGTERM, a grace
// interval, then SIGKILL for a straggler.
func (c *Child) Shutdown(grace time.Duration) {
	if !c.Alive() {
		return
	}

	if err := c.Terminate(); err != nil {
		logger.Warn().Err(err).Strs("argv", c.argv).Msg("failed to terminate child")
	}

	if c.Wait(grace) {
		return
	}

	logger.Warn().Strs("argv", c.argv).Msg("child ignored SIGTERM, killing")
	if err := c.Kill(); err != nil {
		logger.Warn().Err(err).Strs("argv", c.argv).Msg("failed to kill child")
	}
	// Bounded: SIGKILL cannot be ignored, but don't hang finalization
	// if the reap itself goes wrong.
	c.Wait(2 * time.Second)
}

// ReapAll shuts down every child still alive, gracefully first. Called
// during finalization so no sensor process outlives the run.
func (s *Supervisor) ReapAll(grace time.Duration) {
	s.mu.Lock()
	children := make([]*Child, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	for _, child := range children {
		child.Shutdown(grace)
	}
}
