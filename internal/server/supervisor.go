// Package server manages the lifecycle of a local whisper-server process:
// on-demand launch, readiness polling, crash detection, idle shutdown and
// transcription requests against its HTTP API.
package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mortalcornflake/whisper-dictate/internal/jsonpath"
)

// State is the supervisor lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Ready
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Ready:
		return "Ready"
	case Stopping:
		return "Stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Process is a launched server process. exec.Cmd satisfies this through
// the adapter in launch.go; tests substitute fakes.
type Process interface {
	Pid() int
	// Done is closed when the process exits for any reason.
	Done() <-chan struct{}
	Signal(sig os.Signal) error
	Kill() error
}

// LaunchFunc spawns one server process.
type LaunchFunc func() (Process, error)

// startAttempt is one launch in flight. Waiters hold a pointer so the
// outcome they read is the attempt they waited on, not a later one.
type startAttempt struct {
	done chan struct{}
	err  error
}

// Options configures a Supervisor. Zero intervals get defaults.
type Options struct {
	Launch       LaunchFunc
	BaseURL      string
	HealthPath   string
	StartTimeout time.Duration
	IdleTimeout  time.Duration
	PollInterval time.Duration
	ReapInterval time.Duration
	// StopGrace is how long Stop waits after the polite signal;
	// StopExtraGrace is the additional wait before the force kill.
	StopGrace      time.Duration
	StopExtraGrace time.Duration
	HTTPClient     *http.Client
	Debug          bool
}

// Supervisor serializes start/stop decisions for the local server. The
// mutex guards state transitions only; process I/O, health polling and
// HTTP requests all happen outside it.
type Supervisor struct {
	mu       sync.Mutex
	state    State
	proc     Process
	gen      uint64
	starting *startAttempt
	stopDone chan struct{}
	inflight int
	lastUsed time.Time

	opts   Options
	client *http.Client
	quit   chan struct{}
	once   sync.Once
}

// New creates a Supervisor and starts its idle reaper.
func New(opts Options) *Supervisor {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 5 * time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.StopExtraGrace <= 0 {
		opts.StopExtraGrace = 2 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	s := &Supervisor{
		opts:   opts,
		client: client,
		quit:   make(chan struct{}),
	}
	go s.reap()
	return s
}

// StateNow reports the current lifecycle state.
func (s *Supervisor) StateNow() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureRunning returns once the server is Ready, launching it if needed.
// Concurrent callers during a start all share the outcome of that one
// launch attempt. Callers arriving during a stop wait it out and then
// start fresh.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch s.state {
		case Ready:
			s.mu.Unlock()
			return nil

		case Starting:
			attempt := s.starting
			s.mu.Unlock()
			select {
			case <-attempt.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return attempt.err

		case Stopping:
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue

		case Stopped:
			attempt := &startAttempt{done: make(chan struct{})}
			s.state = Starting
			s.starting = attempt
			s.gen++
			gen := s.gen
			s.mu.Unlock()
			s.runStart(gen, attempt)
			return attempt.err
		}
	}
}

// runStart launches the process and polls health until Ready or deadline.
// Runs outside the lock; finishStart publishes the outcome.
func (s *Supervisor) runStart(gen uint64, attempt *startAttempt) {
	if s.opts.Debug {
		fmt.Println("[server] launching")
	}
	proc, err := s.opts.Launch()
	if err != nil {
		s.finishStart(gen, attempt, nil, fmt.Errorf("launch server: %w", err))
		return
	}

	deadline := time.After(s.opts.StartTimeout)
	url := s.opts.BaseURL + s.opts.HealthPath
	for {
		if s.healthy(url) {
			s.finishStart(gen, attempt, proc, nil)
			return
		}
		select {
		case <-proc.Done():
			s.finishStart(gen, attempt, nil, fmt.Errorf("server exited during startup"))
			return
		case <-deadline:
			_ = proc.Kill()
			s.finishStart(gen, attempt, nil, fmt.Errorf("server not healthy within %v", s.opts.StartTimeout))
			return
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *Supervisor) healthy(url string) bool {
	resp, err := s.client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (s *Supervisor) finishStart(gen uint64, attempt *startAttempt, proc Process, err error) {
	attempt.err = err

	s.mu.Lock()
	if s.gen != gen {
		// A reset superseded this start; kill the orphan if it came up.
		attempt.err = fmt.Errorf("server start superseded")
		s.mu.Unlock()
		if proc != nil {
			_ = proc.Kill()
		}
		close(attempt.done)
		return
	}
	if err != nil {
		s.state = Stopped
	} else {
		s.state = Ready
		s.proc = proc
		s.lastUsed = time.Now()
		go s.watch(proc, gen)
	}
	s.starting = nil
	s.mu.Unlock()

	if s.opts.Debug {
		if err != nil {
			fmt.Printf("[server] start failed: %v\n", err)
		} else {
			fmt.Printf("[server] ready (pid=%d)\n", proc.Pid())
		}
	}
	close(attempt.done)
}

// watch flips the state to Stopped when the process dies behind our back.
// A generation check keeps a stale watcher from clobbering a successor.
func (s *Supervisor) watch(proc Process, gen uint64) {
	<-proc.Done()
	s.mu.Lock()
	if s.gen == gen && s.state == Ready && s.proc == proc {
		s.state = Stopped
		s.proc = nil
		if s.opts.Debug {
			fmt.Printf("[server] process died unexpectedly (pid=%d)\n", proc.Pid())
		}
	}
	s.mu.Unlock()
}

// TranscribeFile sends the WAV at path to the running server and returns
// the transcript. The inflight count keeps the idle reaper off while a
// request is outstanding.
func (s *Supervisor) TranscribeFile(ctx context.Context, path string) (string, error) {
	// The inflight mark is taken under the lock only while still Ready;
	// losing the race to a stop means going around again, never sending
	// a request to a server that is being torn down.
	for {
		if err := s.EnsureRunning(ctx); err != nil {
			return "", err
		}
		s.mu.Lock()
		if s.state == Ready {
			s.inflight++
			s.lastUsed = time.Now()
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
	}
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.lastUsed = time.Now()
		s.mu.Unlock()
	}()

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy wav: %w", err)
	}
	_ = writer.WriteField("response_format", "json")
	_ = writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", s.opts.BaseURL+"/inference", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if s.opts.Debug {
		fmt.Printf("[server] inference took %v (status %d)\n", time.Since(start), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference failed: status %d: %s", resp.StatusCode, respBody)
	}
	return jsonpath.ExtractText(respBody, "text"), nil
}

// Stop shuts the server down: polite signal, bounded grace, then kill.
// Safe to call in any state; a no-op unless the server is Ready.
func (s *Supervisor) Stop() { s.stop(false) }

// stopIfIdle is the reaper's stop. Idleness is re-verified under the
// lock at the moment of the Ready to Stopping transition, so a request
// that slipped past EnsureRunning after the reaper's tick is never cut
// off mid-flight.
func (s *Supervisor) stopIfIdle() {
	s.stop(true)
}

func (s *Supervisor) stop(onlyIfIdle bool) {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return
	}
	if onlyIfIdle && (s.inflight > 0 || time.Since(s.lastUsed) < s.opts.IdleTimeout) {
		s.mu.Unlock()
		return
	}
	proc := s.proc
	s.state = Stopping
	s.stopDone = make(chan struct{})
	s.gen++
	s.mu.Unlock()

	if s.opts.Debug {
		fmt.Printf("[server] stopping (pid=%d)\n", proc.Pid())
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		_ = proc.Kill()
	}
	select {
	case <-proc.Done():
	case <-time.After(s.opts.StopGrace):
		select {
		case <-proc.Done():
		case <-time.After(s.opts.StopExtraGrace):
			_ = proc.Kill()
			<-proc.Done()
		}
	}

	s.mu.Lock()
	s.state = Stopped
	s.proc = nil
	done := s.stopDone
	s.stopDone = nil
	s.mu.Unlock()
	close(done)
}

// Close stops the reaper and shuts down any running server. A start
// attempt in flight is waited out first so its process, if it comes up,
// is stopped rather than leaked.
func (s *Supervisor) Close() {
	s.once.Do(func() { close(s.quit) })
	for {
		s.mu.Lock()
		if s.state != Starting {
			s.mu.Unlock()
			break
		}
		attempt := s.starting
		s.mu.Unlock()
		<-attempt.done
	}
	s.Stop()
}

// reap shuts the server down after the configured idle period. Requests
// in flight always hold it open regardless of elapsed time.
func (s *Supervisor) reap() {
	ticker := time.NewTicker(s.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		idle := s.state == Ready && s.inflight == 0 && time.Since(s.lastUsed) >= s.opts.IdleTimeout
		s.mu.Unlock()
		if idle {
			if s.opts.Debug {
				fmt.Println("[server] idle timeout reached, shutting down")
			}
			s.stopIfIdle()
		}
	}
}
