// Package asr turns recorded audio into text. A Chain tries its backends
// in order (cloud API, local whisper-server, whisper-cli) until one of
// them answers; only errors trigger fallback. An empty transcript from a
// healthy backend is a real answer and is returned as-is.
package asr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mortalcornflake/whisper-dictate/internal/config"
	"github.com/mortalcornflake/whisper-dictate/internal/wavfile"
)

// Backend transcribes the WAV file at a path.
type Backend interface {
	Name() string
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Result is a successful transcription and the backend that produced it.
type Result struct {
	Text    string
	Backend string
	// AudioMs is the recorded duration in milliseconds.
	AudioMs int64
}

// Chain writes the session audio to one temp WAV and walks its backends.
type Chain struct {
	cfg      config.Config
	backends []Backend
}

// NewChain orders backends by the configured BACKEND mode.
func NewChain(cfg config.Config, cloud, server, cli Backend) (*Chain, error) {
	var backends []Backend
	add := func(b Backend) {
		if b != nil {
			backends = append(backends, b)
		}
	}
	switch strings.ToLower(cfg.Backend) {
	case "cloud":
		add(cloud)
	case "local":
		add(server)
		add(cli)
	case "auto":
		add(cloud)
		add(server)
		add(cli)
	default:
		return nil, fmt.Errorf("unknown BACKEND: %s", cfg.Backend)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no transcription backend available for BACKEND=%s", cfg.Backend)
	}
	return &Chain{cfg: cfg, backends: backends}, nil
}

// Transcribe encodes pcm to a temp WAV and returns the first backend
// answer. The temp file is removed afterwards; with KEEP_CACHE it is
// renamed to a timestamped name instead, outside the startup-cleanup
// prefix.
func (c *Chain) Transcribe(ctx context.Context, pcm []byte) (Result, error) {
	path, err := wavfile.WriteTemp(config.TempDir(&c.cfg), pcm, c.cfg.SAMPLING_RATE, c.cfg.Channels)
	if err != nil {
		return Result{}, fmt.Errorf("write recording: %w", err)
	}
	defer c.finishCache(path)

	audioMs := wavfile.Duration(pcm, c.cfg.SAMPLING_RATE, c.cfg.Channels).Milliseconds()

	var errs []string
	for _, b := range c.backends {
		text, err := b.TranscribeFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			fmt.Printf("[asr] backend %s failed: %v\n", b.Name(), err)
			errs = append(errs, fmt.Sprintf("%s: %v", b.Name(), err))
			continue
		}
		return Result{Text: strings.TrimSpace(text), Backend: b.Name(), AudioMs: audioMs}, nil
	}
	return Result{}, fmt.Errorf("all backends failed: %s", strings.Join(errs, "; "))
}

func (c *Chain) finishCache(path string) {
	if c.cfg.KeepCache && c.cfg.CacheDir != "" {
		kept := filepath.Join(c.cfg.CacheDir, "audio-"+time.Now().Format("2006-01-02-15.04.05")+".wav")
		if err := os.Rename(path, kept); err != nil {
			fmt.Printf("[cache] failed to keep %s: %v\n", path, err)
			_ = os.Remove(path)
		}
		return
	}
	_ = os.Remove(path)
}
