package asr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mortalcornflake/whisper-dictate/internal/config"
)

type fakeBackend struct {
	name  string
	text  string
	err   error
	calls int
}

func (b *fakeBackend) Name() string { return b.name }
func (b *fakeBackend) TranscribeFile(ctx context.Context, path string) (string, error) {
	b.calls++
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("wav missing: %v", err)
	}
	return b.text, b.err
}

func testChainConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	return cfg
}

// pcm16 returns n silent 16-bit samples.
func pcm16(n int) []byte {
	return make([]byte, n*2)
}

func TestChainFallbackOrder(t *testing.T) {
	cfg := testChainConfig(t)
	cfg.Backend = "auto"

	cloud := &fakeBackend{name: "cloud", err: errors.New("503")}
	srv := &fakeBackend{name: "server", err: errors.New("down")}
	cli := &fakeBackend{name: "cli", text: " fallback text \n"}

	chain, err := NewChain(cfg, cloud, srv, cli)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	res, err := chain.Transcribe(context.Background(), pcm16(1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Backend != "cli" || res.Text != "fallback text" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if cloud.calls != 1 || srv.calls != 1 || cli.calls != 1 {
		t.Fatalf("unexpected call counts: cloud=%d server=%d cli=%d", cloud.calls, srv.calls, cli.calls)
	}
	if res.AudioMs != 100 {
		t.Fatalf("expected 100ms of audio, got %d", res.AudioMs)
	}
}

func TestChainEmptyTextIsAuthoritative(t *testing.T) {
	cfg := testChainConfig(t)
	cfg.Backend = "auto"

	cloud := &fakeBackend{name: "cloud", text: ""}
	srv := &fakeBackend{name: "server", text: "should not run"}

	chain, err := NewChain(cfg, cloud, srv, nil)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	res, err := chain.Transcribe(context.Background(), pcm16(160))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Backend != "cloud" || res.Text != "" {
		t.Fatalf("empty answer must not trigger fallback: %+v", res)
	}
	if srv.calls != 0 {
		t.Fatalf("server backend should not have been tried")
	}
}

func TestChainAllFail(t *testing.T) {
	cfg := testChainConfig(t)
	cfg.Backend = "local"

	srv := &fakeBackend{name: "server", err: errors.New("down")}
	cli := &fakeBackend{name: "cli", err: errors.New("no model")}

	chain, err := NewChain(cfg, nil, srv, cli)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if _, err := chain.Transcribe(context.Background(), pcm16(160)); err == nil {
		t.Fatalf("expected error when every backend fails")
	}
}

func TestChainCloudOnlyMode(t *testing.T) {
	cfg := testChainConfig(t)
	cfg.Backend = "cloud"

	if _, err := NewChain(cfg, nil, &fakeBackend{name: "server"}, nil); err == nil {
		t.Fatalf("cloud mode without a cloud backend must fail")
	}

	cloud := &fakeBackend{name: "cloud", text: "hi"}
	srv := &fakeBackend{name: "server", text: "nope"}
	chain, err := NewChain(cfg, cloud, srv, nil)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	res, err := chain.Transcribe(context.Background(), pcm16(160))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Backend != "cloud" || srv.calls != 0 {
		t.Fatalf("cloud mode must never reach local backends: %+v", res)
	}
}

func TestCloudRetryExhausted(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("fail"))
	}))
	defer ts.Close()

	cfg := config.DefaultConfig()
	cfg.APIEndpoint = ts.URL
	cfg.MaxRetry = 2
	cfg.RetryBaseDelay = 0
	cfg.RequestTimeout = 2

	client := NewCloudClient(cfg, &http.Client{Timeout: time.Second})
	if client == nil {
		t.Fatalf("expected cloud client")
	}

	tmp, err := os.CreateTemp(t.TempDir(), "asr-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := tmp.Write([]byte("RIFF")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = tmp.Close()

	_, err = client.TranscribeFile(context.Background(), tmp.Name())
	if err == nil {
		t.Fatalf("expected error")
	}
	var re *RetryExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryExhaustedError, got %T: %v", err, err)
	}
	if re.Attempts != cfg.MaxRetry || re.MaxRetry != cfg.MaxRetry {
		t.Fatalf("unexpected retry accounting: %+v", re)
	}
	if hits != cfg.MaxRetry {
		t.Fatalf("expected %d upload attempts, got %d", cfg.MaxRetry, hits)
	}
}

func TestCloudExtractsConfiguredPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") == "" {
			t.Errorf("expected model field")
		}
		_, _ = w.Write([]byte(`{"result":{"text":"from cloud"}}`))
	}))
	defer ts.Close()

	cfg := config.DefaultConfig()
	cfg.APIEndpoint = ts.URL
	cfg.TEXTPath = "result.text"
	cfg.RetryBaseDelay = 0

	client := NewCloudClient(cfg, &http.Client{Timeout: time.Second})

	tmp, err := os.CreateTemp(t.TempDir(), "asr-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := tmp.Write([]byte("RIFF")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = tmp.Close()

	text, err := client.TranscribeFile(context.Background(), tmp.Name())
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	if text != "from cloud" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestNewCloudClientRequiresEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIEndpoint = ""
	if NewCloudClient(cfg, nil) != nil {
		t.Fatalf("expected nil client without endpoint")
	}
}
