//go:build windows

package clipboard

import (
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// Paster delivers text at the cursor by briefly borrowing the clipboard:
// save, write, send Ctrl+V, restore. The sleeps give the foreground app
// time to notice the clipboard change and process the keystroke.
type Paster struct{}

func New() *Paster { return &Paster{} }

func (p *Paster) Paste(text string) error {
	orig, _ := clipboard.ReadAll()
	if err := clipboard.WriteAll(text); err != nil {
		return err
	}
	time.Sleep(80 * time.Millisecond)

	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.HasCTRL(true)
	kb.SetKeys(keybd_event.VK_V)
	if err := kb.Launching(); err != nil {
		return err
	}
	time.Sleep(120 * time.Millisecond)
	_ = clipboard.WriteAll(orig)
	return nil
}
