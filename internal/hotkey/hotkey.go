// Package hotkey watches the global keyboard for the hold-to-dictate key
// and the reset combo. The platform hook reports raw key transitions; the
// Tracker turns them into logical events and papers over the ways the OS
// loses keyups (focus steals, secure desktop, remote sessions).
package hotkey

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventKind is a logical hold-key transition.
type EventKind int

const (
	// Pressed is a fresh press, including a press inferred after a lost
	// release.
	Pressed EventKind = iota
	// Released ends a hold.
	Released
	// Repeat is OS key auto-repeat while held; consumers ignore it.
	Repeat
)

func (k EventKind) String() string {
	switch k {
	case Pressed:
		return "Pressed"
	case Released:
		return "Released"
	case Repeat:
		return "Repeat"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Modifier mask bits, matching the Win32 MOD_* values.
const (
	ModAlt   uint32 = 0x0001
	ModCtrl  uint32 = 0x0002
	ModShift uint32 = 0x0004
	ModWin   uint32 = 0x0008
)

// Spec is a parsed key spec: required modifiers plus one virtual-key code.
type Spec struct {
	Mods uint32
	VK   uint32
}

// Config selects the keys to watch.
type Config struct {
	// HoldKey is held to record, e.g. "ralt" or "ctrl+space".
	HoldKey string
	// ResetCombo forces the machine back to Idle, e.g. "ctrl+shift+r".
	ResetCombo string
	Debug      bool
}

// Handlers receive hotkey activity. Event runs off the hook thread.
type Handlers struct {
	Event func(kind EventKind)
	Reset func()
}

const (
	vkLShift = 0xA0
	vkRShift = 0xA1
	vkLCtrl  = 0xA2
	vkRCtrl  = 0xA3
	vkLAlt   = 0xA4
	vkRAlt   = 0xA5
)

// defaultRepeatWindow bounds the gap between auto-repeat keydowns. A
// keydown arriving later than this while we still think the key is held
// means the release never reached us.
const defaultRepeatWindow = 750 * time.Millisecond

// Tracker classifies raw keydown/keyup pairs for one key. OS auto-repeat
// delivers keydowns continuously while held; when those stop without a
// keyup and a new keydown arrives later, the tracker reports it as a
// fresh Press so the state machine can recover.
type Tracker struct {
	mu       sync.Mutex
	held     bool
	lastDown time.Time
	window   time.Duration
}

// NewTracker uses the default repeat window when window is zero.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = defaultRepeatWindow
	}
	return &Tracker{window: window}
}

// KeyDown classifies a raw keydown at time now.
func (t *Tracker) KeyDown(now time.Time) EventKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.held {
		t.held = true
		t.lastDown = now
		return Pressed
	}
	if now.Sub(t.lastDown) <= t.window {
		t.lastDown = now
		return Repeat
	}
	// Repeats stopped long ago without a keyup: the release was lost.
	t.lastDown = now
	return Pressed
}

// KeyUp classifies a raw keyup. Returns false for keyups with no matching
// press, which happen when the press was consumed elsewhere.
func (t *Tracker) KeyUp() (EventKind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.held {
		return 0, false
	}
	t.held = false
	return Released, true
}

// ParseSpec parses "ctrl+shift+r", "ralt", "f9" and similar into a Spec.
// Bare modifier names ("ralt", "lctrl") are valid as the main key so a
// lone modifier can serve as the hold key.
func ParseSpec(s string) (Spec, error) {
	if s == "" {
		return Spec{}, fmt.Errorf("empty key spec")
	}
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.ToLower(parts[i]))
	}

	var mods uint32
	keyToken := parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "alt", "menu":
			mods |= ModAlt
		case "ctrl", "control":
			mods |= ModCtrl
		case "shift":
			mods |= ModShift
		case "win", "meta", "super":
			mods |= ModWin
		default:
			return Spec{}, fmt.Errorf("unknown modifier '%s' in %s", p, s)
		}
	}

	vk, err := parseKeyToken(keyToken)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid key spec '%s': %w", s, err)
	}
	return Spec{Mods: mods, VK: vk}, nil
}

func parseKeyToken(token string) (uint32, error) {
	if len(token) == 1 {
		ch := token[0]
		if ch >= 'a' && ch <= 'z' {
			return uint32(ch - 'a' + 'A'), nil
		}
		if ch >= '0' && ch <= '9' {
			return uint32(ch), nil
		}
	}

	switch token {
	case "ralt", "altgr":
		return vkRAlt, nil
	case "lalt":
		return vkLAlt, nil
	case "rctrl":
		return vkRCtrl, nil
	case "lctrl":
		return vkLCtrl, nil
	case "rshift":
		return vkRShift, nil
	case "lshift":
		return vkLShift, nil
	case "esc", "escape":
		return 0x1B, nil
	case "space":
		return 0x20, nil
	case "enter", "return":
		return 0x0D, nil
	case "tab":
		return 0x09, nil
	case "backspace":
		return 0x08, nil
	case "insert":
		return 0x2D, nil
	case "delete":
		return 0x2E, nil
	case "home":
		return 0x24, nil
	case "end":
		return 0x23, nil
	case "pageup":
		return 0x21, nil
	case "pagedown":
		return 0x22, nil
	case "left":
		return 0x25, nil
	case "up":
		return 0x26, nil
	case "right":
		return 0x27, nil
	case "down":
		return 0x28, nil
	case "capslock":
		return 0x14, nil
	case "scrolllock":
		return 0x91, nil
	case "pause":
		return 0x13, nil
	}

	if strings.HasPrefix(token, "f") {
		if n, err := strconv.Atoi(strings.TrimPrefix(token, "f")); err == nil && n >= 1 && n <= 24 {
			return 0x70 + uint32(n-1), nil
		}
	}
	if strings.HasPrefix(token, "numpad") {
		if n, err := strconv.Atoi(strings.TrimPrefix(token, "numpad")); err == nil && n >= 0 && n <= 9 {
			return 0x60 + uint32(n), nil
		}
	}
	return 0, fmt.Errorf("unsupported key token: %s", token)
}
