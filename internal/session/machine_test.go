package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCapture struct {
	mu         sync.Mutex
	startErr   error
	stopErr    error
	startBlock chan struct{} // Start waits on this when non-nil
	stopBlock  chan struct{} // Stop waits on this when non-nil
	pcm        []byte
	started    bool
	stopped    bool
	abandoned  bool
}

func (c *fakeCapture) Start(device string) error {
	c.mu.Lock()
	block := c.startBlock
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *fakeCapture) Stop() ([]byte, error) {
	c.mu.Lock()
	block := c.stopBlock
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.stopErr != nil {
		return nil, c.stopErr
	}
	if c.pcm == nil {
		return []byte{1, 0, 2, 0}, nil
	}
	return c.pcm, nil
}

func (c *fakeCapture) Abandon() {
	c.mu.Lock()
	c.abandoned = true
	c.mu.Unlock()
}

func (c *fakeCapture) wasAbandoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abandoned
}

type fakeTranscriber struct {
	text  string
	err   error
	block chan struct{} // Transcribe waits on this when non-nil
	calls int32
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	atomic.AddInt32(&t.calls, 1)
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return t.text, t.err
}

type fakePaster struct {
	mu    sync.Mutex
	texts []string
}

func (p *fakePaster) Paste(text string) error {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()
	return nil
}

func (p *fakePaster) pasted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

type fakeCues struct {
	mu        sync.Mutex
	started   int
	processed int
	pasted    int
	autoStops int
	resets    int
	failures  []string
}

func (c *fakeCues) RecordingStarted() { c.mu.Lock(); c.started++; c.mu.Unlock() }
func (c *fakeCues) Processing()       { c.mu.Lock(); c.processed++; c.mu.Unlock() }
func (c *fakeCues) Pasted(string)     { c.mu.Lock(); c.pasted++; c.mu.Unlock() }
func (c *fakeCues) AutoStopped(time.Duration) {
	c.mu.Lock()
	c.autoStops++
	c.mu.Unlock()
}
func (c *fakeCues) ResetDone() { c.mu.Lock(); c.resets++; c.mu.Unlock() }
func (c *fakeCues) Failed(reason string) {
	c.mu.Lock()
	c.failures = append(c.failures, reason)
	c.mu.Unlock()
}

func (c *fakeCues) snapshot() (started, processed, pasted, autoStops, resets, failures int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.processed, c.pasted, c.autoStops, c.resets, len(c.failures)
}

type harness struct {
	machine *Machine
	paster  *fakePaster
	cues    *fakeCues
	caps    []*fakeCapture
	capsMu  sync.Mutex
	nextCap func() *fakeCapture
}

func newHarness(trans Transcriber, opts Options) *harness {
	h := &harness{paster: &fakePaster{}, cues: &fakeCues{}}
	if h.nextCap == nil {
		h.nextCap = func() *fakeCapture { return &fakeCapture{} }
	}
	opts.NewCapture = func() Capture {
		c := h.nextCap()
		h.capsMu.Lock()
		h.caps = append(h.caps, c)
		h.capsMu.Unlock()
		return c
	}
	opts.Transcriber = trans
	opts.Paster = h.paster
	opts.Cues = h.cues
	h.machine = New(opts)
	return h
}

func (h *harness) captureCount() int {
	h.capsMu.Lock()
	defer h.capsMu.Unlock()
	return len(h.caps)
}

func (h *harness) capture(i int) *fakeCapture {
	h.capsMu.Lock()
	defer h.capsMu.Unlock()
	return h.caps[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPressReleasePastesOnce(t *testing.T) {
	h := newHarness(&fakeTranscriber{text: "hello world"}, Options{})

	h.machine.HandlePress()
	if st := h.machine.StateNow(); st != Recording {
		t.Fatalf("expected Recording, got %v", st)
	}
	h.machine.HandleRelease()

	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
	if got := h.paster.pasted(); got[0] != "hello world" {
		t.Fatalf("unexpected paste: %q", got[0])
	}
	waitFor(t, "idle", func() bool { return h.machine.StateNow() == Idle })

	started, processed, pasted, _, _, failures := h.cues.snapshot()
	if started != 1 || processed != 1 || pasted != 1 || failures != 0 {
		t.Fatalf("unexpected cues: started=%d processed=%d pasted=%d failures=%d", started, processed, pasted, failures)
	}
}

func TestSecondPressActsAsStop(t *testing.T) {
	h := newHarness(&fakeTranscriber{text: "toggled"}, Options{})

	h.machine.HandlePress()
	waitFor(t, "recording", func() bool { return h.machine.StateNow() == Recording })

	// The release was lost; the user taps the hotkey again to stop.
	h.machine.HandlePress()
	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
	waitFor(t, "idle", func() bool { return h.machine.StateNow() == Idle })
	if h.captureCount() != 1 {
		t.Fatalf("second press must stop, not start a new capture: %d captures", h.captureCount())
	}
}

func TestRepeatIsIgnored(t *testing.T) {
	h := newHarness(&fakeTranscriber{text: "x"}, Options{})

	h.machine.HandlePress()
	for i := 0; i < 10; i++ {
		h.machine.HandleRepeat()
	}
	if st := h.machine.StateNow(); st != Recording {
		t.Fatalf("auto-repeat must not change state, got %v", st)
	}
	h.machine.HandleRelease()
	waitFor(t, "idle", func() bool { return h.machine.StateNow() == Idle })
	if h.captureCount() != 1 {
		t.Fatalf("expected 1 capture, got %d", h.captureCount())
	}
}

func TestAutoStopFiresOnce(t *testing.T) {
	h := newHarness(&fakeTranscriber{text: "long dictation"}, Options{AutoStop: 30 * time.Millisecond})

	h.machine.HandlePress()
	waitFor(t, "paste after auto-stop", func() bool { return len(h.paster.pasted()) == 1 })
	waitFor(t, "idle", func() bool { return h.machine.StateNow() == Idle })

	_, _, _, autoStops, _, _ := h.cues.snapshot()
	if autoStops != 1 {
		t.Fatalf("expected 1 auto-stop cue, got %d", autoStops)
	}

	// The release eventually arriving for the stopped session is noise.
	h.machine.HandleRelease()
	if st := h.machine.StateNow(); st != Idle {
		t.Fatalf("late release must be ignored, got %v", st)
	}
}

func TestResetWhileIdleIsSilent(t *testing.T) {
	h := newHarness(&fakeTranscriber{text: "x"}, Options{})

	h.machine.Reset()
	h.machine.Reset()
	_, _, _, _, resets, _ := h.cues.snapshot()
	if resets != 0 {
		t.Fatalf("reset from Idle must not emit a cue, got %d", resets)
	}
}

func TestResetAbandonsRecording(t *testing.T) {
	h := newHarness(&fakeTranscriber{text: "x"}, Options{})

	h.machine.HandlePress()
	waitFor(t, "recording", func() bool { return h.machine.StateNow() == Recording })
	h.machine.Reset()

	if st := h.machine.StateNow(); st != Idle {
		t.Fatalf("expected Idle after reset, got %v", st)
	}
	cap := h.capture(0)
	waitFor(t, "abandon", cap.wasAbandoned)
	cap.mu.Lock()
	stopped := cap.stopped
	cap.mu.Unlock()
	if stopped {
		t.Fatalf("reset must abandon, never stop")
	}
	_, _, _, _, resets, _ := h.cues.snapshot()
	if resets != 1 {
		t.Fatalf("expected 1 reset cue, got %d", resets)
	}
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	trans := &fakeTranscriber{text: "stale", block: make(chan struct{})}
	h := newHarness(trans, Options{})

	h.machine.HandlePress()
	h.machine.HandleRelease()
	waitFor(t, "transcribing", func() bool { return h.machine.StateNow() == Transcribing })

	h.machine.Reset()
	close(trans.block)

	// Give the worker time to complete; its result must be dropped.
	time.Sleep(50 * time.Millisecond)
	if got := h.paster.pasted(); len(got) != 0 {
		t.Fatalf("stale result was pasted: %v", got)
	}
	if st := h.machine.StateNow(); st != Idle {
		t.Fatalf("expected Idle, got %v", st)
	}
}

func TestNewSessionAfterResetGetsFreshCapture(t *testing.T) {
	trans := &fakeTranscriber{text: "fresh"}
	h := newHarness(trans, Options{})

	h.machine.HandlePress()
	h.machine.Reset()
	h.machine.HandlePress()
	h.machine.HandleRelease()

	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
	if h.captureCount() != 2 {
		t.Fatalf("expected a fresh capture per session, got %d", h.captureCount())
	}
	if !h.capture(0).wasAbandoned() {
		t.Fatalf("first capture should have been abandoned")
	}
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	h := &harness{paster: &fakePaster{}, cues: &fakeCues{}}
	first := true
	h.nextCap = func() *fakeCapture {
		if first {
			first = false
			return &fakeCapture{startErr: errors.New("device busy")}
		}
		return &fakeCapture{}
	}
	opts := Options{}
	opts.NewCapture = func() Capture {
		c := h.nextCap()
		h.capsMu.Lock()
		h.caps = append(h.caps, c)
		h.capsMu.Unlock()
		return c
	}
	opts.Transcriber = &fakeTranscriber{text: "recovered"}
	opts.Paster = h.paster
	opts.Cues = h.cues
	h.machine = New(opts)

	h.machine.HandlePress()
	waitFor(t, "idle after failure", func() bool { return h.machine.StateNow() == Idle })
	_, _, _, _, _, failures := h.cues.snapshot()
	if failures != 1 {
		t.Fatalf("expected 1 failure cue, got %d", failures)
	}

	// The machine must not be wedged.
	h.machine.HandlePress()
	h.machine.HandleRelease()
	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
}

func TestTranscribeErrorSignalsFailure(t *testing.T) {
	h := newHarness(&fakeTranscriber{err: errors.New("all backends failed")}, Options{})

	h.machine.HandlePress()
	h.machine.HandleRelease()
	waitFor(t, "idle", func() bool { return h.machine.StateNow() == Idle })

	_, _, pasted, _, _, failures := h.cues.snapshot()
	if pasted != 0 || failures != 1 {
		t.Fatalf("expected failure cue and no paste: pasted=%d failures=%d", pasted, failures)
	}
}

func TestEmptyTranscriptPastesNothing(t *testing.T) {
	h := newHarness(&fakeTranscriber{text: ""}, Options{})

	h.machine.HandlePress()
	h.machine.HandleRelease()
	waitFor(t, "idle", func() bool { return h.machine.StateNow() == Idle })

	if got := h.paster.pasted(); len(got) != 0 {
		t.Fatalf("empty transcript must not paste: %v", got)
	}
	_, _, _, _, _, failures := h.cues.snapshot()
	if failures != 0 {
		t.Fatalf("empty transcript is not a failure, got %d failure cues", failures)
	}
}

func TestSafetyResetUnsticksStuckStop(t *testing.T) {
	stuck := &fakeCapture{stopBlock: make(chan struct{})}
	h := &harness{paster: &fakePaster{}, cues: &fakeCues{}}
	h.nextCap = func() *fakeCapture { return stuck }
	opts := Options{SafetyReset: 60 * time.Millisecond}
	opts.NewCapture = func() Capture {
		h.capsMu.Lock()
		c := h.nextCap()
		h.caps = append(h.caps, c)
		h.capsMu.Unlock()
		return c
	}
	opts.Transcriber = &fakeTranscriber{text: "never"}
	opts.Paster = h.paster
	opts.Cues = h.cues
	h.machine = New(opts)

	h.machine.HandlePress()
	h.machine.HandleRelease()
	waitFor(t, "transcribing", func() bool { return h.machine.StateNow() == Transcribing })

	// cap.Stop never returns; only the safety timer can free the machine.
	waitFor(t, "safety reset", func() bool { return h.machine.StateNow() == Idle })
	waitFor(t, "abandon", stuck.wasAbandoned)

	close(stuck.stopBlock)
	time.Sleep(50 * time.Millisecond)
	if got := h.paster.pasted(); len(got) != 0 {
		t.Fatalf("result after safety reset must be dropped: %v", got)
	}
}

func TestSafetyResetFreesHungDeviceOpen(t *testing.T) {
	hung := &fakeCapture{startBlock: make(chan struct{})}
	defer close(hung.startBlock)
	h := &harness{paster: &fakePaster{}, cues: &fakeCues{}}
	h.nextCap = func() *fakeCapture { return hung }
	opts := Options{SafetyReset: 60 * time.Millisecond}
	opts.NewCapture = func() Capture {
		h.capsMu.Lock()
		c := h.nextCap()
		h.caps = append(h.caps, c)
		h.capsMu.Unlock()
		return c
	}
	opts.Transcriber = &fakeTranscriber{text: "never"}
	opts.Paster = h.paster
	opts.Cues = h.cues
	h.machine = New(opts)

	// The device open never returns, so the press goroutine stays inside
	// Start; only the safety timer can bring the machine back.
	go h.machine.HandlePress()
	waitFor(t, "recording", func() bool { return h.machine.StateNow() == Recording })

	waitFor(t, "safety reset", func() bool { return h.machine.StateNow() == Idle })
	waitFor(t, "abandon", hung.wasAbandoned)
	waitFor(t, "reset cue", func() bool {
		_, _, _, _, resets, _ := h.cues.snapshot()
		return resets == 1
	})
	if got := h.paster.pasted(); len(got) != 0 {
		t.Fatalf("nothing should paste after a hung open: %v", got)
	}
}

func TestReleaseDuringDeviceOpenDefersStop(t *testing.T) {
	slow := &fakeCapture{startBlock: make(chan struct{})}
	h := &harness{paster: &fakePaster{}, cues: &fakeCues{}}
	h.nextCap = func() *fakeCapture { return slow }
	opts := Options{}
	opts.NewCapture = func() Capture {
		h.capsMu.Lock()
		c := h.nextCap()
		h.caps = append(h.caps, c)
		h.capsMu.Unlock()
		return c
	}
	opts.Transcriber = &fakeTranscriber{text: "quick tap"}
	opts.Paster = h.paster
	opts.Cues = h.cues
	h.machine = New(opts)

	go h.machine.HandlePress()
	waitFor(t, "recording", func() bool { return h.machine.StateNow() == Recording })

	// Release lands while the device is still opening. It must be
	// honored once the open finishes, not raced against it.
	h.machine.HandleRelease()
	if st := h.machine.StateNow(); st != Recording {
		t.Fatalf("stop must wait for the open to finish, got %v", st)
	}

	close(slow.startBlock)
	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
	waitFor(t, "idle", func() bool { return h.machine.StateNow() == Idle })

	_, processed, pasted, _, _, failures := h.cues.snapshot()
	if failures != 0 {
		t.Fatalf("deferred stop must not signal a failure, got %d", failures)
	}
	if processed != 1 || pasted != 1 {
		t.Fatalf("unexpected cues: processed=%d pasted=%d", processed, pasted)
	}
}

func TestTogglePressDuringDeviceOpenDefersStop(t *testing.T) {
	slow := &fakeCapture{startBlock: make(chan struct{})}
	h := &harness{paster: &fakePaster{}, cues: &fakeCues{}}
	h.nextCap = func() *fakeCapture { return slow }
	opts := Options{}
	opts.NewCapture = func() Capture {
		h.capsMu.Lock()
		c := h.nextCap()
		h.caps = append(h.caps, c)
		h.capsMu.Unlock()
		return c
	}
	opts.Transcriber = &fakeTranscriber{text: "toggled"}
	opts.Paster = h.paster
	opts.Cues = h.cues
	h.machine = New(opts)

	go h.machine.HandlePress()
	waitFor(t, "recording", func() bool { return h.machine.StateNow() == Recording })

	h.machine.HandlePress()
	if h.captureCount() != 1 {
		t.Fatalf("press during open must not start a new capture: %d", h.captureCount())
	}

	close(slow.startBlock)
	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
	_, _, _, _, _, failures := h.cues.snapshot()
	if failures != 0 {
		t.Fatalf("deferred toggle must not signal a failure, got %d", failures)
	}
}

func TestPressDuringTranscribingIsIgnored(t *testing.T) {
	trans := &fakeTranscriber{text: "slow", block: make(chan struct{})}
	h := newHarness(trans, Options{})

	h.machine.HandlePress()
	h.machine.HandleRelease()
	waitFor(t, "transcribing", func() bool { return h.machine.StateNow() == Transcribing })

	h.machine.HandlePress()
	if h.captureCount() != 1 {
		t.Fatalf("press during Transcribing must not start a capture: %d", h.captureCount())
	}

	close(trans.block)
	waitFor(t, "paste", func() bool { return len(h.paster.pasted()) == 1 })
}
