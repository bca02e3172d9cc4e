package server

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/mortalcornflake/whisper-dictate/internal/config"
)

// execProcess adapts exec.Cmd to the Process interface.
type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// NewCommandLauncher builds a LaunchFunc from SERVER_COMMAND. The command
// is parsed shell-style so it can carry its own flags; model, host and
// port are appended from config.
func NewCommandLauncher(cfg config.Config) (LaunchFunc, error) {
	args, err := shellwords.Parse(cfg.ServerCommand)
	if err != nil {
		return nil, fmt.Errorf("parse SERVER_COMMAND: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("SERVER_COMMAND is empty")
	}
	if cfg.ServerModelPath != "" {
		args = append(args, "-m", cfg.ServerModelPath)
	}
	args = append(args, "--host", "127.0.0.1", "--port", strconv.Itoa(cfg.ServerPort))

	debug := cfg.SERVER_DEBUG
	return func() (Process, error) {
		cmd := exec.Command(args[0], args[1:]...)
		if debug {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		p := &execProcess{cmd: cmd, done: make(chan struct{})}
		go func() {
			_ = cmd.Wait()
			close(p.done)
		}()
		return p, nil
	}, nil
}

// BaseURL returns the local server's HTTP base address.
func BaseURL(cfg config.Config) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.ServerPort)
}
