// Package process runs external tools as cancellable, monitored children.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPollInterval bounds how late a cancellation is noticed.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultGracePeriod is how long a terminated child may take to exit before it is killed.
	DefaultGracePeriod = 3 * time.Second
	// DefaultWaitDelay bounds how long output is collected after the child exits.
	DefaultWaitDelay = 500 * time.Millisecond
)

// ErrCanceled reports that a child was stopped because the caller canceled.
var ErrCanceled = errors.New("process canceled")

// IsCanceled reports whether err is a cancellation outcome.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// Spec describes one child process invocation.
type Spec struct {
	Name string
	Args []string
	Dir  string
	Env  []string
	// OnTick, when set, is called on every poll tick with the elapsed time.
	OnTick func(elapsed time.Duration)
}

// String formats the command line for logs.
func (s Spec) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), " ")
}

// Result captures the outcome of one child process.
type Result struct {
	Command  string        `json:"command"`
	Args     []string      `json:"args"`
	PID      int           `json:"pid"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Diagnostic returns the most useful captured output, stderr first.
func (r Result) Diagnostic() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner abstracts child execution so callers can be tested without processes.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// Observer receives one record per finished child.
type Observer interface {
	ObserveCommand(command, status string, elapsed time.Duration)
}

// Supervisor starts children in their own process group and polls for exit
// or cancellation.
type Supervisor struct {
	PollInterval time.Duration
	GracePeriod  time.Duration
	// WaitDelay caps output collection once the child has exited; a
	// descendant still holding stdout or stderr open is cut off after it.
	WaitDelay time.Duration
	Logger       *slog.Logger
	Observer     Observer
}

// NewSupervisor returns a supervisor with default timings.
func NewSupervisor(logger *slog.Logger, observer Observer) *Supervisor {
	return &Supervisor{
		PollInterval: DefaultPollInterval,
		GracePeriod:  DefaultGracePeriod,
		WaitDelay:    DefaultWaitDelay,
		Logger:       logger,
		Observer:     observer,
	}
}

// Run starts the child and blocks until it exits or ctx is canceled. On
// cancellation the child group is sent a terminate signal, then killed after
// the grace period, and the returned error matches ErrCanceled. A non-zero
// exit returns the captured output together with the exit error.
func (s *Supervisor) Run(ctx context.Context, spec Spec) (Result, error) {
	logger := s.logger()
	result := Result{Command: spec.Name, Args: spec.Args, ExitCode: -1}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("%s: %w", spec.Name, ErrCanceled)
	}

	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	setProcessGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return result, fmt.Errorf("stdout pipe for %s: %w", spec.Name, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeFiles(stdoutR, stdoutW)
		return result, fmt.Errorf("stderr pipe for %s: %w", spec.Name, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	started := time.Now()
	err = cmd.Start()
	closeFiles(stdoutW, stderrW)
	if err != nil {
		closeFiles(stdoutR, stderrR)
		s.observe(spec.Name, "start_failed", 0)
		return result, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	result.PID = cmd.Process.Pid
	logger.Debug("child started", "command", spec.String(), "pid", result.PID)

	var stdout, stderr bytes.Buffer
	var readers errgroup.Group
	readers.Go(func() error { return drain(&stdout, stdoutR) })
	readers.Go(func() error { return drain(&stderr, stderrR) })

	done := make(chan error, 1)
	go func() {
		waitErr := cmd.Wait()
		readErr := s.collect(&readers, spec, stdoutR, stderrR)
		if waitErr == nil && readErr != nil {
			waitErr = readErr
		}
		done <- waitErr
	}()

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var waitErr error
	canceled := false
loop:
	for {
		select {
		case waitErr = <-done:
			break loop
		case <-ctx.Done():
			canceled = true
			waitErr = s.stop(cmd, spec, done)
			break loop
		case <-ticker.C:
			if spec.OnTick != nil {
				spec.OnTick(time.Since(started))
			}
		}
	}

	result.Duration = time.Since(started)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if canceled {
		s.observe(spec.Name, "canceled", result.Duration)
		logger.Info("child canceled", "command", spec.Name, "elapsed", result.Duration)
		return result, fmt.Errorf("%s: %w", spec.Name, ErrCanceled)
	}
	if waitErr != nil {
		s.observe(spec.Name, "failed", result.Duration)
		logger.Warn("child failed",
			"command", spec.String(),
			"exit_code", result.ExitCode,
			"output", result.Diagnostic(),
		)
		return result, fmt.Errorf("%s exited with code %d: %w", spec.Name, result.ExitCode, waitErr)
	}

	s.observe(spec.Name, "success", result.Duration)
	logger.Debug("child finished", "command", spec.Name, "elapsed", result.Duration)
	return result, nil
}

// stop escalates terminate → wait → kill and returns the child's wait error.
func (s *Supervisor) stop(cmd *exec.Cmd, spec Spec, done <-chan error) error {
	logger := s.logger()
	if err := terminate(cmd); err != nil {
		logger.Debug("terminate signal failed", "command", spec.Name, "error", err)
	}

	grace := s.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		logger.Warn("child ignored terminate, killing", "command", spec.Name, "grace", grace)
		if err := kill(cmd); err != nil {
			logger.Debug("kill failed", "command", spec.Name, "error", err)
		}
		return <-done
	}
}

// collect waits for the output readers after the child has exited. If a
// descendant keeps a pipe open past WaitDelay the pipes are closed and the
// output captured so far is kept.
func (s *Supervisor) collect(readers *errgroup.Group, spec Spec, pipes ...*os.File) error {
	finished := make(chan error, 1)
	go func() { finished <- readers.Wait() }()

	delay := s.WaitDelay
	if delay <= 0 {
		delay = DefaultWaitDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case err := <-finished:
		closeFiles(pipes...)
		return err
	case <-timer.C:
		s.logger().Warn("child output still open after exit, closing pipes", "command", spec.Name, "wait_delay", delay)
		closeFiles(pipes...)
		<-finished
		return nil
	}
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (s *Supervisor) observe(command, status string, elapsed time.Duration) {
	if s.Observer != nil {
		s.Observer.ObserveCommand(command, status, elapsed)
	}
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func drain(dst *bytes.Buffer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}
