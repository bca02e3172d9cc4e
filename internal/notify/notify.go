// Package notify gives the user audible and visual feedback for session
// transitions. Everything fires on its own goroutine: a slow notification
// daemon must never stall the hotkey path.
package notify

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
)

const title = "Dictate"

// Notifier implements the session cue surface with beeps and, optionally,
// desktop notifications.
type Notifier struct {
	notifications bool
}

func New(notifications bool) *Notifier {
	return &Notifier{notifications: notifications}
}

func (n *Notifier) beep(freq float64, dur int) {
	go func() { _ = beeep.Beep(freq, dur) }()
}

func (n *Notifier) notify(message string) {
	if !n.notifications {
		return
	}
	go func() { _ = beeep.Notify(title, message, "") }()
}

func (n *Notifier) RecordingStarted() {
	n.beep(880, 120)
}

func (n *Notifier) Processing() {
	n.beep(660, 120)
}

func (n *Notifier) Pasted(text string) {
	n.beep(990, 120)
}

func (n *Notifier) AutoStopped(elapsed time.Duration) {
	n.beep(660, 250)
	n.notify(fmt.Sprintf("Recording stopped automatically after %v", elapsed.Round(time.Second)))
}

func (n *Notifier) ResetDone() {
	n.beep(440, 250)
	n.notify("Dictation reset")
}

func (n *Notifier) Failed(reason string) {
	fmt.Printf("[notify] %s\n", reason)
	n.beep(330, 400)
	n.notify(reason)
}
