package transcode

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/latoulicious/radio/pkg/pipeline"
)

// Process is a running transcoder
type Process interface {
	// Output is the process's standard output
	Output() io.ReadCloser
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
	Wait() error
}

// Launcher starts transcoder processes
type Launcher interface {
	Launch(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecLauncher launches real subprocesses with os/exec
type ExecLauncher struct {
	logger pipeline.Logger
}

// NewExecLauncher creates a launcher that forwards stderr lines to logger at
// debug level
func NewExecLauncher(logger pipeline.Logger) *ExecLauncher {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &ExecLauncher{logger: logger}
}

// Launch starts name with args. The process is not bound to ctx; it lives
// until Kill or natural exit.
func (l *ExecLauncher) Launch(ctx context.Context, name string, args ...string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go l.consumeStderr(stderr, cmd.Process.Pid)

	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

// consumeStderr drains stderr so ffmpeg never blocks on a full pipe
func (l *ExecLauncher) consumeStderr(stderr io.Reader, pid int) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		l.logger.Debug("ffmpeg", pipeline.Int("pid", pid), pipeline.String("line", scanner.Text()))
	}
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (p *execProcess) Output() io.ReadCloser { return p.stdout }

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() error { return p.cmd.Wait() }
