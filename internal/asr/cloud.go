package asr

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mortalcornflake/whisper-dictate/internal/audio/ffmpeg"
	"github.com/mortalcornflake/whisper-dictate/internal/config"
	"github.com/mortalcornflake/whisper-dictate/internal/jsonpath"
)

// RetryExhaustedError reports that every upload attempt failed.
type RetryExhaustedError struct {
	Attempts int
	MaxRetry int
	LastResp []byte
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("exceeded max retries (%d/%d): %s", e.Attempts, e.MaxRetry, formatResponse(e.LastResp))
}

// CloudClient uploads audio to the configured HTTP transcription API with
// exponential backoff.
type CloudClient struct {
	cfg        config.Config
	httpClient *http.Client
}

// NewCloudClient returns nil when no endpoint is configured so the chain
// can skip the cloud leg entirely.
func NewCloudClient(cfg config.Config, httpClient *http.Client) *CloudClient {
	if cfg.APIEndpoint == "" {
		return nil
	}
	return &CloudClient{cfg: cfg, httpClient: httpClient}
}

func (c *CloudClient) Name() string { return "cloud" }

// TranscribeFile uploads the WAV (compressed first when UPLOAD_CODEC is
// not wav) and extracts the transcript via TEXT_PATH.
func (c *CloudClient) TranscribeFile(ctx context.Context, path string) (string, error) {
	uploadPath := path
	if !strings.EqualFold(c.cfg.UploadCodec, "wav") {
		converted := strings.TrimSuffix(path, filepath.Ext(path)) + ffmpeg.OutputExt(c.cfg)
		if err := ffmpeg.Convert(c.cfg, path, converted, c.cfg.SAMPLING_RATE); err != nil {
			return "", fmt.Errorf("compress upload: %w", err)
		}
		defer os.Remove(converted)
		uploadPath = converted
	}

	try := 0
	delay := c.cfg.RetryBaseDelay
	var lastResp []byte

	for {
		try++
		ok, resp := c.doUpload(ctx, uploadPath)
		lastResp = resp
		if ok {
			return jsonpath.ExtractText(resp, c.cfg.TEXTPath), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if c.cfg.UPLOAD_DEBUG {
			fmt.Printf("[upload] attempt %d failed: %s\n", try, formatResponse(resp))
		}
		if try >= c.cfg.MaxRetry {
			return "", &RetryExhaustedError{Attempts: try, MaxRetry: c.cfg.MaxRetry, LastResp: lastResp}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(delay * float64(time.Second))):
		}
		delay *= 2
	}
}

func (c *CloudClient) doUpload(ctx context.Context, path string) (bool, []byte) {
	if c.cfg.UPLOAD_DEBUG {
		fmt.Printf("[upload] uploading %s -> %s\n", path, c.cfg.APIEndpoint)
	}
	f, err := os.Open(path)
	if err != nil {
		return false, []byte(fmt.Sprintf("open file error: %v", err))
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return false, []byte(fmt.Sprintf("create form file error: %v", err))
	}
	if _, err := io.Copy(part, f); err != nil {
		return false, []byte(fmt.Sprintf("copy file error: %v", err))
	}
	if c.cfg.Model != "" {
		_ = writer.WriteField("model", c.cfg.Model)
	}
	if c.cfg.Language != "" {
		_ = writer.WriteField("language", c.cfg.Language)
	}
	if c.cfg.Prompt != "" {
		_ = writer.WriteField("prompt", c.cfg.Prompt)
	}
	_ = writer.Close()

	client := c.httpClient
	if client == nil {
		client = &http.Client{Timeout: time.Duration(c.cfg.RequestTimeout) * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.APIEndpoint, body)
	if err != nil {
		return false, []byte(fmt.Sprintf("new request error: %v", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	req.Header.Set("User-Agent", "whisper-dictate/1.0")

	start := time.Now()
	resp, err := client.Do(req)
	if c.cfg.UPLOAD_DEBUG {
		fmt.Printf("[upload] request duration: %v\n", time.Since(start))
	}
	if err != nil {
		return false, []byte(fmt.Sprintf("request error: %v", err))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return false, respBody
	}
	return true, respBody
}

func formatResponse(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	const maxText = 1000
	const maxBin = 256

	if utf8.Valid(b) {
		s := string(b)
		if len(s) > maxText {
			return fmt.Sprintf("%s... (truncated, total %d bytes)", s[:maxText], len(b))
		}
		return s
	}
	if len(b) > maxBin {
		return fmt.Sprintf("<binary %d bytes, prefix hex: %s...>", len(b), hex.EncodeToString(b[:maxBin]))
	}
	return fmt.Sprintf("<binary %d bytes, hex: %s>", len(b), hex.EncodeToString(b))
}
