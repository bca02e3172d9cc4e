// Package capture owns a single PortAudio input stream per recording
// session. A stream is either stopped cleanly (Stop, returns the buffered
// PCM) or abandoned (Abandon, drops the reference and lets a background
// attempt close it). Abandon exists because stopping a PortAudio stream
// from a thread other than its callback has been observed to hang; the
// control path must never wait on stream teardown.
package capture

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Initialize prepares the PortAudio host API. Call once at startup.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate releases the PortAudio host API. Call once at shutdown.
func Terminate() {
	_ = portaudio.Terminate()
}

// Capture buffers frames from one input stream.
type Capture struct {
	mu        sync.Mutex
	stream    *portaudio.Stream
	frames    []int16
	recording bool
	abandoned bool

	sampleRate int
	channels   int
	debug      bool
}

// New creates an idle capture. The stream is opened by Start.
func New(sampleRate, channels int, debug bool) *Capture {
	return &Capture{sampleRate: sampleRate, channels: channels, debug: debug}
}

// Start opens the input stream and begins buffering frames. device is a
// case-insensitive substring of the input device name; empty selects the
// system default. Fails if the device is busy or missing.
func (c *Capture) Start(device string) error {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return fmt.Errorf("capture abandoned")
	}
	if c.stream != nil {
		c.mu.Unlock()
		return fmt.Errorf("capture already started")
	}
	c.mu.Unlock()

	stream, err := c.openStream(device)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}

	c.mu.Lock()
	if c.abandoned {
		// Abandon raced the open; hand the fresh stream to best-effort cleanup.
		c.mu.Unlock()
		go closeQuietly(stream)
		return fmt.Errorf("capture abandoned")
	}
	c.stream = stream
	c.recording = true
	c.mu.Unlock()

	if c.debug {
		fmt.Printf("[capture] stream started (rate=%d channels=%d)\n", c.sampleRate, c.channels)
	}
	return nil
}

func (c *Capture) openStream(device string) (*portaudio.Stream, error) {
	if device == "" {
		stream, err := portaudio.OpenDefaultStream(c.channels, 0, float64(c.sampleRate), 0, c.appendFrames)
		if err != nil {
			return nil, fmt.Errorf("open default stream: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var info *portaudio.DeviceInfo
	want := strings.ToLower(device)
	for _, d := range devices {
		if d.MaxInputChannels >= c.channels && strings.Contains(strings.ToLower(d.Name), want) {
			info = d
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("input device matching '%s' not found", device)
	}

	params := portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = c.channels
	params.SampleRate = float64(c.sampleRate)
	params.FramesPerBuffer = 0
	stream, err := portaudio.OpenStream(params, c.appendFrames)
	if err != nil {
		return nil, fmt.Errorf("open stream on '%s': %w", info.Name, err)
	}
	return stream, nil
}

// appendFrames is the stream callback. It runs on PortAudio's thread and
// must stay cheap; after Stop or Abandon it observes the torn-down state
// and becomes a no-op.
func (c *Capture) appendFrames(in []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording || c.abandoned {
		return
	}
	c.frames = append(c.frames, in...)
}

// Stop ends buffering, stops the stream and returns the accumulated PCM
// as little-endian int16 bytes. May block on the stream stop; callers that
// cannot block use Abandon instead.
func (c *Capture) Stop() ([]byte, error) {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return nil, fmt.Errorf("capture abandoned")
	}
	if c.stream == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("capture not started")
	}
	c.recording = false
	stream := c.stream
	c.stream = nil
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	stopErr := stream.Stop()
	closeErr := stream.Close()
	if c.debug {
		fmt.Printf("[capture] stream stopped (%d samples, stopErr=%v closeErr=%v)\n", len(frames), stopErr, closeErr)
	}

	pcm := make([]byte, len(frames)*2)
	for i, s := range frames {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	if stopErr != nil {
		return pcm, fmt.Errorf("stop stream: %w", stopErr)
	}
	return pcm, nil
}

// Abandon detaches from the stream without waiting for any acknowledgment.
// The buffered audio is discarded and the underlying resource is not
// guaranteed released; a background attempt closes it with no wait.
func (c *Capture) Abandon() {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return
	}
	c.abandoned = true
	c.recording = false
	stream := c.stream
	c.stream = nil
	c.frames = nil
	c.mu.Unlock()

	if c.debug {
		fmt.Println("[capture] abandoned")
	}
	if stream != nil {
		go closeQuietly(stream)
	}
}

func closeQuietly(stream *portaudio.Stream) {
	// Best effort only; nothing waits on this and a hang here leaks one
	// stream until process exit.
	_ = stream.Abort()
	_ = stream.Close()
}
