// Package desktop adapts the share channels to the machine the admin CLI runs on.
package desktop

import (
	"github.com/atotto/clipboard"
	"github.com/pkg/browser"
	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core/share"
)

var ErrNoClipboard = errors.New("no clipboard utility available")

type Clipboard struct{}

var _ share.Clipboard = Clipboard{}

func (Clipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrNoClipboard
	}
	return clipboard.WriteAll(text)
}

// Browser opens URLs with the system handler (browser, mail client, WhatsApp).
type Browser struct{}

var _ share.Opener = Browser{}

func (Browser) OpenURL(u string) error {
	return errors.Wrap(browser.OpenURL(u), "opening url")
}

// NewClipboard returns the system clipboard, or nil when the platform has none,
// letting share.CopyLink fall back to printing the link.
func NewClipboard() share.Clipboard {
	if clipboard.Unsupported {
		return nil
	}
	return Clipboard{}
}
