// Package session drives the hold-to-dictate lifecycle: hotkey press
// starts a recording, release stops it and hands the audio to the
// transcriber, and the result is pasted at the cursor. The machine must
// survive every failure mode of its collaborators (stuck audio streams,
// hung uploads, lost key events) without ever wedging; Reset is the
// always-available escape hatch and never blocks on I/O.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State of the dictation machine.
type State int

const (
	Idle State = iota
	Recording
	Transcribing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Transcribing:
		return "Transcribing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Capture is one recording in progress. Stop may block; Abandon must not.
type Capture interface {
	Start(device string) error
	Stop() ([]byte, error)
	Abandon()
}

// CaptureFactory builds a fresh Capture per session. A capture is never
// reused: once stopped or abandoned it is dead.
type CaptureFactory func() Capture

// Transcriber turns raw PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// Paster delivers text at the cursor position.
type Paster interface {
	Paste(text string) error
}

// Cues is the user-feedback surface (beeps, notifications).
type Cues interface {
	RecordingStarted()
	Processing()
	Pasted(text string)
	AutoStopped(elapsed time.Duration)
	ResetDone()
	Failed(reason string)
}

// Options wires a Machine.
type Options struct {
	NewCapture  CaptureFactory
	Transcriber Transcriber
	Paster      Paster
	Cues        Cues
	Device      string
	// AutoStop bounds a single recording; SafetyReset bounds the whole
	// session including a stuck stop or transcription.
	AutoStop    time.Duration
	SafetyReset time.Duration
	Debug       bool
}

// captureSession is one press-to-paste cycle. The id orders results:
// anything completing for an id other than the current one is stale and
// gets dropped.
type captureSession struct {
	id        uint64
	startedAt time.Time
	cap       Capture
	cancel    context.CancelFunc
	// started flips once cap.Start has returned; stopPending records a
	// stop request (release or toggle) that arrived before it did.
	started     bool
	stopPending bool
	autoTimer   *time.Timer
	safetyTimer *time.Timer
}

// Machine is the dictation state machine. The mutex guards state
// decisions only; capture I/O, transcription and pasting all run outside
// it so a hung collaborator can never deadlock the hotkey path.
type Machine struct {
	mu          sync.Mutex
	state       State
	sess        *captureSession
	nextID      uint64
	isResetting bool

	opts Options
}

// New creates an idle Machine.
func New(opts Options) *Machine {
	if opts.AutoStop <= 0 {
		opts.AutoStop = 45 * time.Second
	}
	if opts.SafetyReset <= 0 {
		opts.SafetyReset = 5 * time.Minute
	}
	return &Machine{opts: opts}
}

// StateNow reports the current state.
func (m *Machine) StateNow() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HandlePress reacts to a fresh hotkey press. Idle starts a recording.
// A fresh press while Recording means the matching release was lost
// (focus change, secure desktop) and acts as a stop. Presses during
// Transcribing or a reset are dropped.
func (m *Machine) HandlePress() {
	m.mu.Lock()
	if m.isResetting {
		m.mu.Unlock()
		return
	}
	switch m.state {
	case Recording:
		if !m.sess.started {
			// Device still opening; remember the stop instead of racing
			// a Stop against the in-flight Start.
			m.sess.stopPending = true
			m.mu.Unlock()
			return
		}
		m.stopAndTranscribeLocked("toggle")
		m.mu.Unlock()
		return
	case Transcribing:
		m.mu.Unlock()
		return
	}

	m.nextID++
	sess := &captureSession{
		id:        m.nextID,
		startedAt: time.Now(),
		cap:       m.opts.NewCapture(),
	}
	m.sess = sess
	m.state = Recording
	// Armed before Start: the safety timer must cover a device open that
	// never returns, not just a stuck stop or upload.
	id := sess.id
	sess.safetyTimer = time.AfterFunc(m.opts.SafetyReset, func() { m.safetyReset(id) })
	m.mu.Unlock()

	if m.opts.Debug {
		fmt.Printf("[session] %d: recording\n", sess.id)
	}

	// Opening the device can block; do it outside the lock and roll back
	// if it fails or a reset won the race.
	if err := sess.cap.Start(m.opts.Device); err != nil {
		m.mu.Lock()
		if m.sess == sess {
			m.sess = nil
			m.state = Idle
			sess.safetyTimer.Stop()
		}
		m.mu.Unlock()
		m.opts.Cues.Failed(fmt.Sprintf("recording failed: %v", err))
		return
	}

	m.mu.Lock()
	if m.sess != sess {
		// Reset arrived while the device was opening; the reset path
		// already abandoned this capture.
		m.mu.Unlock()
		return
	}
	sess.started = true
	if sess.stopPending {
		// A release or toggle landed during the open; honor it now that
		// the capture can actually be stopped.
		m.stopAndTranscribeLocked("deferred-stop")
		m.mu.Unlock()
		return
	}
	sess.autoTimer = time.AfterFunc(m.opts.AutoStop, func() { m.autoStop(id) })
	m.mu.Unlock()

	m.opts.Cues.RecordingStarted()
}

// HandleRelease stops the current recording and starts transcription.
// Releases in any other state are noise and ignored.
func (m *Machine) HandleRelease() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isResetting || m.state != Recording || m.sess == nil {
		return
	}
	if !m.sess.started {
		m.sess.stopPending = true
		return
	}
	m.stopAndTranscribeLocked("release")
}

// HandleRepeat absorbs OS key auto-repeat while the hotkey is held.
func (m *Machine) HandleRepeat() {}

// stopAndTranscribeLocked moves Recording to Transcribing and hands the
// capture to a worker goroutine. Caller holds the lock. The safety timer
// keeps running; it is the only thing that frees a stuck stop or upload.
func (m *Machine) stopAndTranscribeLocked(reason string) {
	sess := m.sess
	if sess.autoTimer != nil {
		sess.autoTimer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	m.state = Transcribing

	if m.opts.Debug {
		fmt.Printf("[session] %d: transcribing (%s)\n", sess.id, reason)
	}
	go m.transcribe(ctx, sess.id, sess.cap)
	m.opts.Cues.Processing()
}

func (m *Machine) transcribe(ctx context.Context, id uint64, cap Capture) {
	pcm, err := cap.Stop()
	if err != nil {
		m.complete(id, "", fmt.Errorf("stop capture: %w", err))
		return
	}
	text, err := m.opts.Transcriber.Transcribe(ctx, pcm)
	m.complete(id, text, err)
}

// complete finishes a session if it is still the current one. Results
// from sessions displaced by a reset or safety timeout are dropped so a
// late transcript can never paste into the wrong context.
func (m *Machine) complete(id uint64, text string, err error) {
	m.mu.Lock()
	if m.isResetting || m.sess == nil || m.sess.id != id {
		m.mu.Unlock()
		if m.opts.Debug {
			fmt.Printf("[session] %d: stale result dropped\n", id)
		}
		return
	}
	if m.sess.safetyTimer != nil {
		m.sess.safetyTimer.Stop()
	}
	if m.sess.cancel != nil {
		m.sess.cancel()
	}
	m.sess = nil
	m.state = Idle
	m.mu.Unlock()

	if err != nil {
		m.opts.Cues.Failed(fmt.Sprintf("transcription failed: %v", err))
		return
	}
	if text == "" {
		if m.opts.Debug {
			fmt.Printf("[session] %d: empty transcript, nothing to paste\n", id)
		}
		return
	}
	if err := m.opts.Paster.Paste(text); err != nil {
		m.opts.Cues.Failed(fmt.Sprintf("paste failed: %v", err))
		return
	}
	m.opts.Cues.Pasted(text)
}

// autoStop fires when a recording runs past the hold limit, covering a
// release event the OS never delivered.
func (m *Machine) autoStop(id uint64) {
	m.mu.Lock()
	if m.isResetting || m.state != Recording || m.sess == nil || m.sess.id != id {
		m.mu.Unlock()
		return
	}
	elapsed := time.Since(m.sess.startedAt)
	m.stopAndTranscribeLocked("auto-stop")
	m.mu.Unlock()

	m.opts.Cues.AutoStopped(elapsed)
}

// safetyReset is the last line of defense: if a session is still not
// Idle this long after it began, something below us is stuck and the
// whole session is forcibly discarded.
func (m *Machine) safetyReset(id uint64) {
	m.mu.Lock()
	stuck := !m.isResetting && m.sess != nil && m.sess.id == id && m.state != Idle
	m.mu.Unlock()
	if !stuck {
		return
	}
	fmt.Printf("[session] %d: safety reset fired\n", id)
	m.Reset()
}

// Reset forces the machine back to Idle from any state. It abandons the
// capture rather than stopping it and never waits on in-flight work;
// whatever completes later is discarded by the id check. Calling Reset
// while already Idle is a silent no-op.
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.state == Idle && m.sess == nil {
		m.mu.Unlock()
		return
	}
	m.isResetting = true
	sess := m.sess
	m.sess = nil
	m.state = Idle
	if sess != nil {
		if sess.autoTimer != nil {
			sess.autoTimer.Stop()
		}
		if sess.safetyTimer != nil {
			sess.safetyTimer.Stop()
		}
		if sess.cancel != nil {
			sess.cancel()
		}
	}
	m.mu.Unlock()

	if sess != nil {
		sess.cap.Abandon()
	}

	m.mu.Lock()
	m.isResetting = false
	m.mu.Unlock()

	if m.opts.Debug && sess != nil {
		fmt.Printf("[session] %d: reset\n", sess.id)
	}
	m.opts.Cues.ResetDone()
}
