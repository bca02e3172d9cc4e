package config

import (
	"flag"
	"fmt"
	"strconv"
)

// FlagValues holds parsed flags with explicit set tracking so that only
// flags the user actually passed override the config file.
type FlagValues struct {
	APIEndpoint    string
	APIEndpointSet bool
	Token          string
	TokenSet       bool
	Model          string
	ModelSet       bool
	Language       string
	LanguageSet    bool
	Prompt         string
	PromptSet      bool
	TEXTPath       string
	TEXTPathSet    bool

	Backend    string
	BackendSet bool

	HotKey         string
	HotKeySet      bool
	ResetCombo     string
	ResetComboSet  bool
	InputDevice    string
	InputDeviceSet bool

	SamplingRate    int
	SamplingRateSet bool

	AutoStopSec       int
	AutoStopSecSet    bool
	SafetyResetSec    int
	SafetyResetSecSet bool

	ServerCommand            string
	ServerCommandSet         bool
	ServerModelPath          string
	ServerModelPathSet       bool
	ServerPort               int
	ServerPortSet            bool
	ServerStartTimeoutSec    int
	ServerStartTimeoutSecSet bool
	ServerIdleTimeoutSec     int
	ServerIdleTimeoutSecSet  bool

	CLICommand      string
	CLICommandSet   bool
	CLIModelPath    string
	CLIModelPathSet bool

	RequestTimeout    int
	RequestTimeoutSet bool
	MaxRetry          int
	MaxRetrySet       bool
	RetryBaseDelay    float64
	RetryBaseDelaySet bool
	EnableHTTP2       bool
	EnableHTTP2Set    bool
	VerifySSL         bool
	VerifySSLSet      bool

	UploadCodec        string
	UploadCodecSet     bool
	UploadContainer    string
	UploadContainerSet bool
	BitRate            int
	BitRateSet         bool

	CacheDir       string
	CacheDirSet    bool
	KeepCache      bool
	KeepCacheSet   bool
	HistoryPath    string
	HistoryPathSet bool

	Notification    bool
	NotificationSet bool

	HotkeyDebug     bool
	HotkeyDebugSet  bool
	CaptureDebug    bool
	CaptureDebugSet bool
	UploadDebug     bool
	UploadDebugSet  bool
	ServerDebug     bool
	ServerDebugSet  bool
	FfmpegDebug     bool
	FfmpegDebugSet  bool
}

type stringFlag struct {
	target *string
	set    *bool
}

func (s *stringFlag) String() string {
	if s == nil || s.target == nil {
		return ""
	}
	return *s.target
}

func (s *stringFlag) Set(v string) error {
	*s.target = v
	*s.set = true
	return nil
}

type intFlag struct {
	target *int
	set    *bool
}

func (i *intFlag) String() string {
	if i == nil || i.target == nil {
		return ""
	}
	return fmt.Sprintf("%d", *i.target)
}

func (i *intFlag) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*i.target = n
	*i.set = true
	return nil
}

type boolFlag struct {
	target *bool
	set    *bool
}

func (b *boolFlag) String() string {
	if b == nil || b.target == nil {
		return ""
	}
	return strconv.FormatBool(*b.target)
}

func (b *boolFlag) Set(v string) error {
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*b.target = parsed
	*b.set = true
	return nil
}

func (b *boolFlag) IsBoolFlag() bool { return true }

type floatFlag struct {
	target *float64
	set    *bool
}

func (f *floatFlag) String() string {
	if f == nil || f.target == nil {
		return ""
	}
	return strconv.FormatFloat(*f.target, 'f', -1, 64)
}

func (f *floatFlag) Set(v string) error {
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*f.target = parsed
	*f.set = true
	return nil
}

// RegisterFlags wires the override flags into fs and returns the backing
// FlagValues.
func RegisterFlags(fs *flag.FlagSet) *FlagValues {
	fv := &FlagValues{}

	fs.Var(&stringFlag{&fv.APIEndpoint, &fv.APIEndpointSet}, "api-endpoint", "cloud ASR endpoint URL")
	fs.Var(&stringFlag{&fv.Token, &fv.TokenSet}, "token", "cloud API bearer token")
	fs.Var(&stringFlag{&fv.Model, &fv.ModelSet}, "model", "cloud model name")
	fs.Var(&stringFlag{&fv.Language, &fv.LanguageSet}, "language", "transcription language hint")
	fs.Var(&stringFlag{&fv.Prompt, &fv.PromptSet}, "prompt", "transcription prompt text")
	fs.Var(&stringFlag{&fv.TEXTPath, &fv.TEXTPathSet}, "text-path", "JSON path of the text field in the cloud response")

	fs.Var(&stringFlag{&fv.Backend, &fv.BackendSet}, "backend", "transcription backend: cloud, local or auto")

	fs.Var(&stringFlag{&fv.HotKey, &fv.HotKeySet}, "hotkey", "hold-to-record key (e.g. ralt, ctrl+F9)")
	fs.Var(&stringFlag{&fv.ResetCombo, &fv.ResetComboSet}, "reset-combo", "key combo forcing a reset (e.g. ctrl+shift+r)")
	fs.Var(&stringFlag{&fv.InputDevice, &fv.InputDeviceSet}, "input-device", "audio input device name substring (empty = default)")

	fs.Var(&intFlag{&fv.SamplingRate, &fv.SamplingRateSet}, "sampling-rate", "capture sample rate in Hz")
	fs.Var(&intFlag{&fv.AutoStopSec, &fv.AutoStopSecSet}, "auto-stop", "auto-stop a recording after this many seconds")
	fs.Var(&intFlag{&fv.SafetyResetSec, &fv.SafetyResetSecSet}, "safety-reset", "force reset a stuck session after this many seconds")

	fs.Var(&stringFlag{&fv.ServerCommand, &fv.ServerCommandSet}, "server-command", "local inference server command")
	fs.Var(&stringFlag{&fv.ServerModelPath, &fv.ServerModelPathSet}, "server-model", "model path passed to the local server")
	fs.Var(&intFlag{&fv.ServerPort, &fv.ServerPortSet}, "server-port", "local inference server port")
	fs.Var(&intFlag{&fv.ServerStartTimeoutSec, &fv.ServerStartTimeoutSecSet}, "server-start-timeout", "seconds to wait for the local server to become healthy")
	fs.Var(&intFlag{&fv.ServerIdleTimeoutSec, &fv.ServerIdleTimeoutSecSet}, "server-idle-timeout", "seconds of inactivity before the local server is stopped")

	fs.Var(&stringFlag{&fv.CLICommand, &fv.CLICommandSet}, "cli-command", "one-shot local inference command")
	fs.Var(&stringFlag{&fv.CLIModelPath, &fv.CLIModelPathSet}, "cli-model", "model path passed to the one-shot command")

	fs.Var(&intFlag{&fv.RequestTimeout, &fv.RequestTimeoutSet}, "request-timeout", "cloud request timeout in seconds")
	fs.Var(&intFlag{&fv.MaxRetry, &fv.MaxRetrySet}, "max-retry", "cloud upload max retries")
	fs.Var(&floatFlag{&fv.RetryBaseDelay, &fv.RetryBaseDelaySet}, "retry-base-delay", "cloud retry base delay in seconds")
	fs.Var(&boolFlag{&fv.EnableHTTP2, &fv.EnableHTTP2Set}, "enable-http2", "enable HTTP/2 for cloud uploads")
	fs.Var(&boolFlag{&fv.VerifySSL, &fv.VerifySSLSet}, "verify-ssl", "verify HTTPS certificates")

	fs.Var(&stringFlag{&fv.UploadCodec, &fv.UploadCodecSet}, "upload-codec", "codec for pre-upload compression (wav = none)")
	fs.Var(&stringFlag{&fv.UploadContainer, &fv.UploadContainerSet}, "upload-container", "container for pre-upload compression")
	fs.Var(&intFlag{&fv.BitRate, &fv.BitRateSet}, "bit-rate", "compression bit rate in kbps")

	fs.Var(&stringFlag{&fv.CacheDir, &fv.CacheDirSet}, "cache-dir", "directory for temp files and kept recordings")
	fs.Var(&boolFlag{&fv.KeepCache, &fv.KeepCacheSet}, "keep-cache", "keep recordings in the cache dir")
	fs.Var(&stringFlag{&fv.HistoryPath, &fv.HistoryPathSet}, "history", "SQLite transcript history path (empty = disabled)")

	fs.Var(&boolFlag{&fv.Notification, &fv.NotificationSet}, "notification", "enable desktop notifications")

	fs.Var(&boolFlag{&fv.HotkeyDebug, &fv.HotkeyDebugSet}, "hotkey-debug", "hotkey/hook debug output")
	fs.Var(&boolFlag{&fv.CaptureDebug, &fv.CaptureDebugSet}, "capture-debug", "audio capture debug output")
	fs.Var(&boolFlag{&fv.UploadDebug, &fv.UploadDebugSet}, "upload-debug", "cloud upload debug output")
	fs.Var(&boolFlag{&fv.ServerDebug, &fv.ServerDebugSet}, "server-debug", "local server supervisor debug output")
	fs.Var(&boolFlag{&fv.FfmpegDebug, &fv.FfmpegDebugSet}, "ffmpeg-debug", "ffmpeg debug output")

	return fv
}

// Apply copies every flag the user set onto cfg.
func (fv *FlagValues) Apply(cfg *Config) {
	if fv.APIEndpointSet {
		cfg.APIEndpoint = fv.APIEndpoint
	}
	if fv.TokenSet {
		cfg.Token = fv.Token
	}
	if fv.ModelSet {
		cfg.Model = fv.Model
	}
	if fv.LanguageSet {
		cfg.Language = fv.Language
	}
	if fv.PromptSet {
		cfg.Prompt = fv.Prompt
	}
	if fv.TEXTPathSet {
		cfg.TEXTPath = fv.TEXTPath
	}
	if fv.BackendSet {
		cfg.Backend = fv.Backend
	}
	if fv.HotKeySet {
		cfg.HotKey = fv.HotKey
	}
	if fv.ResetComboSet {
		cfg.ResetCombo = fv.ResetCombo
	}
	if fv.InputDeviceSet {
		cfg.InputDevice = fv.InputDevice
	}
	if fv.SamplingRateSet {
		cfg.SAMPLING_RATE = fv.SamplingRate
	}
	if fv.AutoStopSecSet {
		cfg.AutoStopSec = fv.AutoStopSec
	}
	if fv.SafetyResetSecSet {
		cfg.SafetyResetSec = fv.SafetyResetSec
	}
	if fv.ServerCommandSet {
		cfg.ServerCommand = fv.ServerCommand
	}
	if fv.ServerModelPathSet {
		cfg.ServerModelPath = fv.ServerModelPath
	}
	if fv.ServerPortSet {
		cfg.ServerPort = fv.ServerPort
	}
	if fv.ServerStartTimeoutSecSet {
		cfg.ServerStartTimeoutSec = fv.ServerStartTimeoutSec
	}
	if fv.ServerIdleTimeoutSecSet {
		cfg.ServerIdleTimeoutSec = fv.ServerIdleTimeoutSec
	}
	if fv.CLICommandSet {
		cfg.CLICommand = fv.CLICommand
	}
	if fv.CLIModelPathSet {
		cfg.CLIModelPath = fv.CLIModelPath
	}
	if fv.RequestTimeoutSet {
		cfg.RequestTimeout = fv.RequestTimeout
	}
	if fv.MaxRetrySet {
		cfg.MaxRetry = fv.MaxRetry
	}
	if fv.RetryBaseDelaySet {
		cfg.RetryBaseDelay = fv.RetryBaseDelay
	}
	if fv.EnableHTTP2Set {
		cfg.EnableHTTP2 = fv.EnableHTTP2
	}
	if fv.VerifySSLSet {
		cfg.VerifySSL = fv.VerifySSL
	}
	if fv.UploadCodecSet {
		cfg.UploadCodec = fv.UploadCodec
	}
	if fv.UploadContainerSet {
		cfg.UploadContainer = fv.UploadContainer
	}
	if fv.BitRateSet {
		cfg.BitRate = fv.BitRate
	}
	if fv.CacheDirSet {
		cfg.CacheDir = fv.CacheDir
	}
	if fv.KeepCacheSet {
		cfg.KeepCache = fv.KeepCache
	}
	if fv.HistoryPathSet {
		cfg.HistoryPath = fv.HistoryPath
	}
	if fv.NotificationSet {
		cfg.Notification = fv.Notification
	}
	if fv.HotkeyDebugSet {
		cfg.HOTKEY_DEBUG = fv.HotkeyDebug
	}
	if fv.CaptureDebugSet {
		cfg.CAPTURE_DEBUG = fv.CaptureDebug
	}
	if fv.UploadDebugSet {
		cfg.UPLOAD_DEBUG = fv.UploadDebug
	}
	if fv.ServerDebugSet {
		cfg.SERVER_DEBUG = fv.ServerDebug
	}
	if fv.FfmpegDebugSet {
		cfg.FFMPEG_DEBUG = fv.FfmpegDebug
	}
}
