// Package ffmpeg shells out to the ffmpeg binary to compress a recorded
// WAV before upload. Only the cloud backend uses it; local backends take
// the WAV directly.
package ffmpeg

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mortalcornflake/whisper-dictate/internal/config"
)

// Convert transcodes inPath into the configured upload codec and writes
// the result to outPath. rate is the source sample rate, used when the
// config does not pin one.
func Convert(cfg config.Config, inPath, outPath string, rate int) error {
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	sr := cfg.SAMPLING_RATE
	if sr <= 0 {
		sr = rate
	}
	bitrate := cfg.BitRate
	if bitrate <= 0 {
		bitrate = 128
	}

	codec, hasBitrate := codecFor(cfg.UploadCodec)
	if codec == "" {
		return fmt.Errorf("unsupported upload codec: %s", cfg.UploadCodec)
	}

	args := []string{"-y", "-i", inPath, "-ac", strconv.Itoa(channels), "-ar", strconv.Itoa(sr), "-c:a", codec}
	if hasBitrate {
		args = append(args, "-b:a", fmt.Sprintf("%dk", bitrate))
	}
	args = append(args, outPath)

	if cfg.FFMPEG_DEBUG {
		fmt.Printf("[ffmpeg] executing: ffmpeg %s\n", strings.Join(args, " "))
	}
	cmd := exec.Command("ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %v\n%s", err, stderr.String())
	}
	return nil
}

// ConvertToWav resamples any input into the 16-bit PCM WAV the
// transcription backends expect.
func ConvertToWav(cfg config.Config, inPath, outPath string) error {
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	sr := cfg.SAMPLING_RATE
	if sr <= 0 {
		sr = 16000
	}
	args := []string{"-y", "-i", inPath, "-ac", strconv.Itoa(channels), "-ar", strconv.Itoa(sr), "-c:a", "pcm_s16le", outPath}

	if cfg.FFMPEG_DEBUG {
		fmt.Printf("[ffmpeg] executing: ffmpeg %s\n", strings.Join(args, " "))
	}
	cmd := exec.Command("ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %v\n%s", err, stderr.String())
	}
	return nil
}

// OutputExt returns the file extension for the configured container.
func OutputExt(cfg config.Config) string {
	return "." + strings.ToLower(cfg.UploadContainer)
}

func codecFor(key string) (string, bool) {
	switch strings.ToLower(key) {
	case "opus":
		return "libopus", true
	case "mp3":
		return "libmp3lame", true
	case "aac":
		return "aac", true
	case "flac":
		return "flac", false
	default:
		return "", false
	}
}
