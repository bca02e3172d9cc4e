package asr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/mortalcornflake/whisper-dictate/internal/config"
	"github.com/mortalcornflake/whisper-dictate/internal/server"
)

// ServerBackend transcribes through the supervised local whisper-server.
type ServerBackend struct {
	sup *server.Supervisor
}

func NewServerBackend(sup *server.Supervisor) *ServerBackend {
	if sup == nil {
		return nil
	}
	return &ServerBackend{sup: sup}
}

func (b *ServerBackend) Name() string { return "server" }

func (b *ServerBackend) TranscribeFile(ctx context.Context, path string) (string, error) {
	return b.sup.TranscribeFile(ctx, path)
}

// CLIBackend runs whisper-cli once per request. Slowest option; last in
// every chain.
type CLIBackend struct {
	command string
	model   string
	debug   bool
}

// NewCLIBackend returns nil when no CLI model is configured.
func NewCLIBackend(cfg config.Config) *CLIBackend {
	if cfg.CLICommand == "" || cfg.CLIModelPath == "" {
		return nil
	}
	return &CLIBackend{command: cfg.CLICommand, model: cfg.CLIModelPath, debug: cfg.SERVER_DEBUG}
}

func (b *CLIBackend) Name() string { return "cli" }

// TranscribeFile invokes the CLI with timestamps suppressed; the
// transcript is whatever lands on stdout.
func (b *CLIBackend) TranscribeFile(ctx context.Context, path string) (string, error) {
	args, err := shellwords.Parse(b.command)
	if err != nil {
		return "", fmt.Errorf("parse CLI_COMMAND: %w", err)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("CLI_COMMAND is empty")
	}
	args = append(args, "-m", b.model, "-f", path, "--no-timestamps", "-nt")

	if b.debug {
		fmt.Printf("[cli] executing: %s\n", strings.Join(args, " "))
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper-cli failed: %v\n%s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}
