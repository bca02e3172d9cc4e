package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds configurable parameters.
type Config struct {
	APIEndpoint string `json:"API_ENDPOINT"`
	Token       string `json:"TOKEN"`
	Model       string `json:"MODEL"`
	Language    string `json:"LANGUAGE"`
	Prompt      string `json:"PROMPT"`
	TEXTPath    string `json:"TEXT_PATH"`

	// Backend selects the transcription chain: "cloud", "local" or "auto"
	// (cloud first, local fallback).
	Backend string `json:"BACKEND"`

	HotKey      string `json:"HOTKEY"`
	ResetCombo  string `json:"RESET_COMBO"`
	InputDevice string `json:"INPUT_DEVICE"`

	Channels      int `json:"CHANNELS"`
	SAMPLING_RATE int `json:"SAMPLING_RATE"`

	AutoStopSec    int `json:"AUTO_STOP_SEC"`
	SafetyResetSec int `json:"SAFETY_RESET_SEC"`

	ServerCommand         string `json:"SERVER_COMMAND"`
	ServerModelPath       string `json:"SERVER_MODEL_PATH"`
	ServerPort            int    `json:"SERVER_PORT"`
	ServerHealthPath      string `json:"SERVER_HEALTH_PATH"`
	ServerStartTimeoutSec int    `json:"SERVER_START_TIMEOUT_SEC"`
	ServerIdleTimeoutSec  int    `json:"SERVER_IDLE_TIMEOUT_SEC"`

	CLICommand   string `json:"CLI_COMMAND"`
	CLIModelPath string `json:"CLI_MODEL_PATH"`

	RequestTimeout int     `json:"REQUEST_TIMEOUT"`
	MaxRetry       int     `json:"MAX_RETRY"`
	RetryBaseDelay float64 `json:"RETRY_BASE_DELAY"`
	EnableHTTP2    bool    `json:"ENABLE_HTTP2"`
	VerifySSL      bool    `json:"VERIFY_SSL"`

	// UploadCodec "wav" uploads the recorded WAV as-is; anything else is
	// converted with ffmpeg before upload.
	UploadCodec     string `json:"UPLOAD_CODEC"`
	UploadContainer string `json:"UPLOAD_CONTAINER"`
	BitRate         int    `json:"BIT_RATE"`

	CacheDir    string `json:"CACHE_DIR"`
	KeepCache   bool   `json:"KEEP_CACHE"`
	HistoryPath string `json:"HISTORY_PATH"`

	Notification bool `json:"NOTIFICATION"`

	HOTKEY_DEBUG  bool `json:"HOTKEY_DEBUG"`
	CAPTURE_DEBUG bool `json:"CAPTURE_DEBUG"`
	UPLOAD_DEBUG  bool `json:"UPLOAD_DEBUG"`
	SERVER_DEBUG  bool `json:"SERVER_DEBUG"`
	FFMPEG_DEBUG  bool `json:"FFMPEG_DEBUG"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		APIEndpoint:           "",
		Token:                 "",
		Model:                 "whisper-large-v3",
		Language:              "",
		Prompt:                "",
		TEXTPath:              "text",
		Backend:               "auto",
		HotKey:                "ralt",
		ResetCombo:            "ctrl+shift+r",
		InputDevice:           "",
		Channels:              1,
		SAMPLING_RATE:         16000,
		AutoStopSec:           45,
		SafetyResetSec:        300,
		ServerCommand:         "whisper-server",
		ServerModelPath:       "",
		ServerPort:            8178,
		ServerHealthPath:      "/health",
		ServerStartTimeoutSec: 30,
		ServerIdleTimeoutSec:  1800,
		CLICommand:            "whisper-cli",
		CLIModelPath:          "",
		RequestTimeout:        30,
		MaxRetry:              3,
		RetryBaseDelay:        0.5,
		EnableHTTP2:           true,
		VerifySSL:             true,
		UploadCodec:           "wav",
		UploadContainer:       "ogg",
		BitRate:               128,
		CacheDir:              "",
		KeepCache:             false,
		HistoryPath:           "",
		Notification:          true,
		HOTKEY_DEBUG:          false,
		CAPTURE_DEBUG:         false,
		UPLOAD_DEBUG:          false,
		SERVER_DEBUG:          false,
		FFMPEG_DEBUG:          false,
	}
}

// Load loads config from JSON file if provided.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveDefault writes a default config JSON to the provided path.
func SaveDefault(path string) error {
	cfg := DefaultConfig()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate verifies config fields and returns an error if any value is invalid.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Backend) {
	case "cloud", "local", "auto":
	default:
		return fmt.Errorf("invalid BACKEND: %s (allowed: cloud, local, auto)", cfg.Backend)
	}
	if cfg.HotKey == "" {
		return fmt.Errorf("HOTKEY must not be empty")
	}
	if cfg.Channels < 1 || cfg.Channels > 8 {
		return fmt.Errorf("invalid CHANNELS: %d (allowed 1..8)", cfg.Channels)
	}
	if cfg.SAMPLING_RATE <= 0 {
		return fmt.Errorf("invalid SAMPLING_RATE: %d (must be > 0)", cfg.SAMPLING_RATE)
	}
	if cfg.AutoStopSec <= 0 {
		return fmt.Errorf("invalid AUTO_STOP_SEC: %d (must be > 0)", cfg.AutoStopSec)
	}
	if cfg.SafetyResetSec <= cfg.AutoStopSec {
		return fmt.Errorf("invalid SAFETY_RESET_SEC: %d (must be > AUTO_STOP_SEC)", cfg.SafetyResetSec)
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d (allowed 1..65535)", cfg.ServerPort)
	}
	if cfg.ServerStartTimeoutSec <= 0 {
		return fmt.Errorf("invalid SERVER_START_TIMEOUT_SEC: %d (must be > 0)", cfg.ServerStartTimeoutSec)
	}
	if cfg.ServerIdleTimeoutSec <= 0 {
		return fmt.Errorf("invalid SERVER_IDLE_TIMEOUT_SEC: %d (must be > 0)", cfg.ServerIdleTimeoutSec)
	}
	if cfg.MaxRetry < 1 {
		return fmt.Errorf("invalid MAX_RETRY: %d (must be >= 1)", cfg.MaxRetry)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("invalid REQUEST_TIMEOUT: %d (must be > 0)", cfg.RequestTimeout)
	}

	allowedCodecs := map[string]bool{
		"wav":  true,
		"opus": true,
		"flac": true,
		"mp3":  true,
		"aac":  true,
	}
	if !allowedCodecs[strings.ToLower(cfg.UploadCodec)] {
		return fmt.Errorf("invalid UPLOAD_CODEC: %s (allowed: WAV, OPUS, FLAC, MP3, AAC)", cfg.UploadCodec)
	}
	allowedContainers := map[string]bool{
		"wav":  true,
		"ogg":  true,
		"oga":  true,
		"flac": true,
		"mp3":  true,
		"m4a":  true,
		"opus": true,
	}
	if !allowedContainers[strings.ToLower(cfg.UploadContainer)] {
		return fmt.Errorf("invalid UPLOAD_CONTAINER: %s (allowed: WAV, OGG, OGA, FLAC, MP3, M4A, OPUS)", cfg.UploadContainer)
	}
	if cfg.BitRate <= 0 {
		return fmt.Errorf("invalid BIT_RATE: %d (must be > 0)", cfg.BitRate)
	}
	return nil
}

// InitCacheDir validates/creates the configured cache directory.
// It mutates cfg.CacheDir to an absolute path or clears it on failure.
func InitCacheDir(cfg *Config) {
	if cfg.CacheDir == "" {
		return
	}
	abs, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		fmt.Printf("[main] cache-dir path invalid '%s': %v. Falling back to cwd.\n", cfg.CacheDir, err)
		cfg.CacheDir = ""
		return
	}
	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			fmt.Printf("[main] cache-dir '%s' exists but is not a directory. Falling back to cwd.\n", abs)
			cfg.CacheDir = ""
			return
		}
		cfg.CacheDir = abs
		return
	}
	if os.IsNotExist(err) {
		if err := os.MkdirAll(abs, 0755); err != nil {
			fmt.Printf("[main] cannot create cache-dir '%s': %v. Falling back to cwd.\n", abs, err)
			cfg.CacheDir = ""
			return
		}
		cfg.CacheDir = abs
		return
	}
	fmt.Printf("[main] cannot access cache-dir '%s': %v. Falling back to cwd.\n", abs, err)
	cfg.CacheDir = ""
}

// TempDir returns the directory to use for temporary files.
func TempDir(cfg *Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	cwd, _ := os.Getwd()
	return cwd
}

// AutoStop returns the recording auto-stop timeout.
func (c Config) AutoStop() time.Duration {
	return time.Duration(c.AutoStopSec) * time.Second
}

// SafetyReset returns the last-resort reset timeout.
func (c Config) SafetyReset() time.Duration {
	return time.Duration(c.SafetyResetSec) * time.Second
}

// ServerStartTimeout returns the local server startup deadline.
func (c Config) ServerStartTimeout() time.Duration {
	return time.Duration(c.ServerStartTimeoutSec) * time.Second
}

// ServerIdleTimeout returns the local server idle-shutdown timeout.
func (c Config) ServerIdleTimeout() time.Duration {
	return time.Duration(c.ServerIdleTimeoutSec) * time.Second
}
