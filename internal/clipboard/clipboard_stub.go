//go:build !windows

package clipboard

import "fmt"

// Paster is not supported off Windows.
type Paster struct{}

func New() *Paster { return &Paster{} }

func (p *Paster) Paste(text string) error {
	return fmt.Errorf("clipboard paste not supported on this platform")
}
