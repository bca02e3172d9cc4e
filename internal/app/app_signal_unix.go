//go:build !windows

package app

import (
	"os"
	"os/signal"
	"syscall"
)

// watchResetSignal invokes reset on every SIGUSR1, mirroring the reset
// hotkey combo for environments where the combo cannot be typed.
func watchResetSignal(reset func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		for range ch {
			reset()
		}
	}()
}
