//go:build !windows

package hotkey

import "fmt"

// Listen is not supported off Windows; file mode still works everywhere.
func Listen(cfg Config, h Handlers) error {
	return fmt.Errorf("global hotkeys are not supported on this platform")
}
