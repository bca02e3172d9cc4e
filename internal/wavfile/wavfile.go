// Package wavfile bridges raw 16-bit PCM buffers and WAV files on disk.
// Capture produces bare PCM; every transcription backend wants a WAV file,
// so the chain writes one temp file per session here.
package wavfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const tempPrefix = "RecordTemp_"

// TempPath returns a fresh temp file path under dir with the given
// extension (no leading dot). The file is not created.
func TempPath(dir, ext string) string {
	if dir == "" {
		cwd, _ := os.Getwd()
		dir = cwd
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	return filepath.Join(dir, fmt.Sprintf("%s%s.%s", tempPrefix, id, ext))
}

// WriteTemp encodes pcm (little-endian int16 samples) into a temp WAV file
// under dir and returns its path. The caller owns the file.
func WriteTemp(dir string, pcm []byte, sampleRate, channels int) (string, error) {
	if len(pcm)%2 != 0 {
		return "", fmt.Errorf("pcm payload not 16-bit aligned (%d bytes)", len(pcm))
	}
	path := TempPath(dir, "wav")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create wav: %w", err)
	}

	if err := Encode(f, pcm, sampleRate, channels); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close wav: %w", err)
	}
	return path, nil
}

// Encode writes pcm as a 16-bit WAV stream to f.
func Encode(f *os.File, pcm []byte, sampleRate, channels int) error {
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(pcm)/2),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// ReadFile decodes a WAV file into raw little-endian int16 PCM and returns
// the payload with its sample rate and channel count.
func ReadFile(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil {
		return nil, 0, 0, fmt.Errorf("wav has no format chunk")
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return pcm, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// Duration reports how much audio time pcm holds.
func Duration(pcm []byte, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(pcm) / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// CleanupTemp removes leftover temp recordings from dir. Run at startup so
// crashed sessions do not accumulate files.
func CleanupTemp(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Printf("[cleanup] read dir '%s' failed: %v\n", dir, err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, tempPrefix) {
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil {
				fmt.Printf("[cleanup] failed remove %s: %v\n", path, err)
			}
		}
	}
}
