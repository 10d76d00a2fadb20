package procexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
)

// Spec describes a child process.
type Spec struct {
	// Name labels log lines and errors (e.g. "yagna").
	Name string
	Path string
	Args []string
	// Env is appended to the parent environment.
	Env []string
	Dir string
}

// Process is a running child.
type Process interface {
	PID() int
	// Done is closed once the process has exited and its exit handler ran.
	Done() <-chan struct{}
	// ExitCode is valid after Done is closed; -1 when killed by a signal.
	ExitCode() int
	// Stop asks the process group to terminate, escalating to SIGKILL after
	// grace. Safe to call repeatedly and after the process exited.
	Stop(ctx context.Context, grace time.Duration) error
}

// Launcher starts child processes. onExit is registered before the process
// starts and runs exactly once when it exits, whatever the reason.
type Launcher interface {
	Start(spec Spec, onExit func(code int)) (Process, error)
}

// ExecLauncher launches real processes in their own process group.
type ExecLauncher struct {
	Logger *slog.Logger
	Clock  clock.Clock
}

// NewExecLauncher returns a launcher logging child output through logger.
func NewExecLauncher(logger *slog.Logger, clk clock.Clock) *ExecLauncher {
	if clk == nil {
		clk = clock.Real()
	}
	return &ExecLauncher{Logger: logging.NewComponentLogger(logger, "procexec"), Clock: clk}
}

var commandFunc = exec.Command

func (l *ExecLauncher) Start(spec Spec, onExit func(code int)) (Process, error) {
	if spec.Path == "" {
		return nil, errors.New("process path required")
	}
	cmd := commandFunc(spec.Path, spec.Args...) //nolint:gosec
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout pipe: %w", spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stderr pipe: %w", spec.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	logger := l.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldDaemon, spec.Name))
	logger.Info("process started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("path", spec.Path),
		logging.Any("args", spec.Args),
	)

	clk := l.Clock
	if clk == nil {
		clk = clock.Real()
	}
	p := &execProcess{
		cmd:    cmd,
		name:   spec.Name,
		done:   make(chan struct{}),
		logger: logger,
		clock:  clk,
		code:   -1,
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go p.forward(&pipes, stdout, slog.LevelDebug)
	go p.forward(&pipes, stderr, slog.LevelInfo)
	go p.wait(&pipes, onExit)
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	name   string
	done   chan struct{}
	logger *slog.Logger
	clock  clock.Clock

	mu   sync.Mutex
	code int
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *execProcess) forward(wg *sync.WaitGroup, r io.Reader, level slog.Level) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.logger.Log(context.Background(), level, scanner.Text())
	}
}

func (p *execProcess) wait(pipes *sync.WaitGroup, onExit func(int)) {
	pipes.Wait()
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	p.mu.Lock()
	p.code = code
	p.mu.Unlock()

	p.logger.Info("process exited", logging.Int("exit_code", code))
	if onExit != nil {
		onExit(code)
	}
	close(p.done)
}

func (p *execProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) signal(sig unix.Signal) error {
	err := unix.Kill(-p.cmd.Process.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *execProcess) Stop(ctx context.Context, grace time.Duration) error {
	if p.exited() {
		return nil
	}
	if err := p.signal(unix.SIGTERM); err != nil {
		return fmt.Errorf("terminate %s: %w", p.name, err)
	}
	select {
	case <-p.done:
		return nil
	case <-p.clock.After(grace):
	case <-ctx.Done():
	}

	p.logger.Warn("process did not exit within grace period, killing",
		logging.Duration("grace", grace),
		logging.String(logging.FieldEventType, "process_force_kill"),
	)
	if err := p.signal(unix.SIGKILL); err != nil {
		return fmt.Errorf("kill %s: %w", p.name, err)
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
