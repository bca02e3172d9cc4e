// Package app wires the dictation pipeline together and runs the two
// entry modes: record (hotkey daemon) and file (one-shot transcription).
package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/mortalcornflake/whisper-dictate/internal/asr"
	"github.com/mortalcornflake/whisper-dictate/internal/audio/ffmpeg"
	"github.com/mortalcornflake/whisper-dictate/internal/capture"
	"github.com/mortalcornflake/whisper-dictate/internal/clipboard"
	"github.com/mortalcornflake/whisper-dictate/internal/config"
	"github.com/mortalcornflake/whisper-dictate/internal/history"
	"github.com/mortalcornflake/whisper-dictate/internal/hotkey"
	"github.com/mortalcornflake/whisper-dictate/internal/notify"
	"github.com/mortalcornflake/whisper-dictate/internal/server"
	"github.com/mortalcornflake/whisper-dictate/internal/session"
	"github.com/mortalcornflake/whisper-dictate/internal/wavfile"
)

// RunRecordMode runs the hotkey daemon until interrupted.
func RunRecordMode(cfg config.Config) error {
	tempDir := config.TempDir(&cfg)
	wavfile.CleanupTemp(tempDir)

	if err := capture.Initialize(); err != nil {
		return fmt.Errorf("init audio: %w", err)
	}
	defer capture.Terminate()

	sup, chain, err := buildChain(cfg)
	if err != nil {
		return err
	}
	if sup != nil {
		defer sup.Close()
	}

	var store *history.Store
	if cfg.HistoryPath != "" {
		store, err = history.Open(cfg.HistoryPath)
		if err != nil {
			fmt.Printf("[main] history disabled: %v\n", err)
		} else {
			defer store.Close()
		}
	}

	machine := session.New(session.Options{
		NewCapture: func() session.Capture {
			return capture.New(cfg.SAMPLING_RATE, cfg.Channels, cfg.CAPTURE_DEBUG)
		},
		Transcriber: &loggingTranscriber{chain: chain, store: store},
		Paster:      clipboard.New(),
		Cues:        notify.New(cfg.Notification),
		Device:      cfg.InputDevice,
		AutoStop:    cfg.AutoStop(),
		SafetyReset: cfg.SafetyReset(),
		Debug:       cfg.HOTKEY_DEBUG,
	})

	watchResetSignal(machine.Reset)

	err = hotkey.Listen(hotkey.Config{
		HoldKey:    cfg.HotKey,
		ResetCombo: cfg.ResetCombo,
		Debug:      cfg.HOTKEY_DEBUG,
	}, hotkey.Handlers{
		Event: func(kind hotkey.EventKind) {
			switch kind {
			case hotkey.Pressed:
				machine.HandlePress()
			case hotkey.Released:
				machine.HandleRelease()
			case hotkey.Repeat:
				machine.HandleRepeat()
			}
		},
		Reset: machine.Reset,
	})
	if err != nil {
		return err
	}

	fmt.Printf("[main] ready. Hold '%s' to dictate, '%s' to reset.\n", cfg.HotKey, cfg.ResetCombo)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	fmt.Println("[main] shutting down")
	machine.Reset()
	return nil
}

// RunFileMode transcribes an existing audio file and writes the text next
// to it (or to outputPath when given).
func RunFileMode(cfg config.Config, inputPath, outputPath string) error {
	tempDir := config.TempDir(&cfg)
	wavfile.CleanupTemp(tempDir)

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("file '%s' stat failed: %w", inputPath, err)
	}

	wavPath := inputPath
	if !strings.EqualFold(filepath.Ext(inputPath), ".wav") {
		// Non-WAV input goes through ffmpeg into the capture format first.
		tmp := wavfile.TempPath(tempDir, "wav")
		if err := ffmpeg.ConvertToWav(cfg, inputPath, tmp); err != nil {
			_ = os.Remove(tmp)
			return err
		}
		defer os.Remove(tmp)
		wavPath = tmp
	}

	pcm, rate, channels, err := wavfile.ReadFile(wavPath)
	if err != nil {
		return err
	}
	// The chain re-encodes pcm, so it must see the file's real format.
	cfg.SAMPLING_RATE = rate
	cfg.Channels = channels

	sup, chain, err := buildChain(cfg)
	if err != nil {
		return err
	}
	if sup != nil {
		defer sup.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	res, err := chain.Transcribe(ctx, pcm)
	if err != nil {
		return err
	}

	outPath := outputPath
	if outPath == "" {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		outPath = filepath.Join(".", base+".txt")
	}
	if err := os.WriteFile(outPath, []byte(res.Text), 0644); err != nil {
		return err
	}
	fmt.Printf("[main] transcribed via %s -> %s\n", res.Backend, outPath)
	return nil
}

// buildChain assembles the backend chain from config. The supervisor is
// only created when a local server model is configured; it is returned so
// callers can shut it down.
func buildChain(cfg config.Config) (*server.Supervisor, *asr.Chain, error) {
	httpClient := newHTTPClient(cfg)

	var cloud asr.Backend
	if c := asr.NewCloudClient(cfg, httpClient); c != nil {
		cloud = c
	}

	var sup *server.Supervisor
	var srv asr.Backend
	if cfg.ServerModelPath != "" {
		launch, err := server.NewCommandLauncher(cfg)
		if err != nil {
			return nil, nil, err
		}
		sup = server.New(server.Options{
			Launch:       launch,
			BaseURL:      server.BaseURL(cfg),
			HealthPath:   cfg.ServerHealthPath,
			StartTimeout: cfg.ServerStartTimeout(),
			IdleTimeout:  cfg.ServerIdleTimeout(),
			Debug:        cfg.SERVER_DEBUG,
		})
		srv = asr.NewServerBackend(sup)
	}

	var cli asr.Backend
	if c := asr.NewCLIBackend(cfg); c != nil {
		cli = c
	}

	chain, err := asr.NewChain(cfg, cloud, srv, cli)
	if err != nil {
		if sup != nil {
			sup.Close()
		}
		return nil, nil, err
	}
	return sup, chain, nil
}

// loggingTranscriber adapts the chain to the session and appends finished
// dictations to history. History failures are logged, never propagated.
type loggingTranscriber struct {
	chain *asr.Chain
	store *history.Store
}

func (t *loggingTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	res, err := t.chain.Transcribe(ctx, pcm)
	if err != nil {
		return "", err
	}
	if t.store != nil && res.Text != "" {
		if err := t.store.Append(history.Entry{
			AudioMs: res.AudioMs,
			Backend: res.Backend,
			Text:    res.Text,
		}); err != nil {
			fmt.Printf("[history] append failed: %v\n", err)
		}
	}
	return res.Text, nil
}

func newHTTPClient(cfg config.Config) *http.Client {
	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !cfg.VerifySSL {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.EnableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}
	return &http.Client{
		Transport: tr,
		Timeout:   time.Duration(cfg.RequestTimeout) * time.Second,
	}
}
