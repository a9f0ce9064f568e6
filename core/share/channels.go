package share

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/elecmate/sitebrief/core"
)

type (
	Clipboard interface {
		WriteAll(text string) error
	}

	// Opener opens a URL in a new window (browser, WhatsApp, mail client).
	Opener interface {
		OpenURL(u string) error
	}

	// Sharer is a platform share sheet.
	// It returns ErrShareCancelled when the user dismisses it.
	Sharer interface {
		Share(ctx context.Context, title, text, u string) error
	}

	// Notification is what the notification function needs to email a signing link.
	Notification struct {
		Link           Link
		RecipientEmail string
	}

	Notifier interface {
		NotifySigningLink(ctx context.Context, n Notification) error
	}

	// RecipientTracker records addresses a link was emailed to.
	RecipientTracker interface {
		TrackRecipient(ctx context.Context, link Link, email string) error
	}
)

// CopyLink puts the link on the clipboard, or prints it for manual copy.
type CopyLink struct {
	Clipboard Clipboard
	Manual    io.Writer
}

func (c CopyLink) Name() string { return "copy" }

func (c CopyLink) Share(_ context.Context, link Link) Result {
	res := Result{Channel: c.Name(), URL: link.URL}

	var clipErr error
	if c.Clipboard != nil {
		if clipErr = c.Clipboard.WriteAll(link.URL); clipErr == nil {
			res.Outcome = Delivered
			return res
		}
		clipErr = errors.Wrap(clipErr, "writing to clipboard")
	} else {
		clipErr = errors.New("clipboard unavailable")
	}

	if c.Manual == nil {
		res.Outcome = Failed
		res.Err = clipErr
		return res
	}
	if _, err := fmt.Fprintf(c.Manual, "Copy this link: %s\n", link.URL); err != nil {
		res.Outcome = Failed
		res.Err = errors.Wrap(err, "printing link")
		return res
	}
	res.Outcome = FallbackOpened
	res.Err = clipErr
	return res
}

// WhatsApp opens wa.me with the templated message. Delivery is fire-and-forget.
// A nil Opener leaves opening the URL to the caller.
type WhatsApp struct {
	Templates *Templates
	Opener    Opener
}

func (w WhatsApp) Name() string { return "whatsapp" }

func (w WhatsApp) Share(_ context.Context, link Link) Result {
	res := Result{Channel: w.Name()}

	msg, err := w.Templates.WhatsAppMessage(link)
	if err != nil {
		res.Err = err
		return res
	}
	res.URL = WhatsAppURL(msg)

	if w.Opener != nil {
		if err = w.Opener.OpenURL(res.URL); err != nil {
			res.Err = errors.Wrap(err, "opening whatsapp")
			return res
		}
	}
	res.Outcome = Delivered
	return res
}

// Native hands the link to the platform share sheet, falling back when there is none.
type Native struct {
	Sharer    Sharer
	Templates *Templates
	Fallback  Channel
}

func (n Native) Name() string { return "native" }

func (n Native) Share(ctx context.Context, link Link) Result {
	if n.Sharer == nil {
		if n.Fallback == nil {
			return Result{Channel: n.Name(), Outcome: Failed, Err: ErrNoFallback}
		}
		res := n.Fallback.Share(ctx, link)
		res.Channel = n.Name()
		if res.Outcome == Delivered {
			res.Outcome = FallbackOpened
		}
		return res
	}

	res := Result{Channel: n.Name(), URL: link.URL}
	text, err := n.Templates.WhatsAppMessage(link)
	if err != nil {
		res.Err = err
		return res
	}

	switch err = n.Sharer.Share(ctx, link.BriefingName, text, link.URL); {
	case err == nil:
		res.Outcome = Delivered
	case errors.Cause(err) == ErrShareCancelled:
		res.Outcome = Cancelled
	default:
		res.Err = errors.Wrap(err, "native share")
	}
	return res
}

// Email sends the link through the Notifier and records the recipient.
// When sending fails, a pre-filled mailto: link is opened instead.
type Email struct {
	Recipient string
	Notifier  Notifier
	Tracker   RecipientTracker
	Templates *Templates
	Opener    Opener
}

func (e Email) Name() string { return "email" }

func (e Email) Share(ctx context.Context, link Link) Result {
	res := Result{Channel: e.Name()}

	email := core.CleanString(e.Recipient, true)
	if email == "" {
		res.Err = ErrNoRecipient
		return res
	}

	sendErr := e.Notifier.NotifySigningLink(ctx, Notification{Link: link, RecipientEmail: email})
	if sendErr == nil {
		res.Outcome = Delivered
		res.URL = link.URL
		if e.Tracker != nil {
			if err := e.Tracker.TrackRecipient(ctx, link, email); err != nil {
				res.Err = errors.Wrap(err, "tracking recipient")
			}
		}
		return res
	}

	subject, err := e.Templates.MailSubject(link)
	if err != nil {
		res.Err = err
		return res
	}
	body, err := e.Templates.MailBody(link)
	if err != nil {
		res.Err = err
		return res
	}
	res.URL = MailtoURL(email, subject, body)

	if e.Opener != nil {
		if err = e.Opener.OpenURL(res.URL); err != nil {
			res.Err = errors.Wrap(err, "opening mail client")
			return res
		}
	}
	res.Outcome = FallbackOpened
	res.Err = errors.Wrap(sendErr, "sending signing link")
	return res
}

const DefaultQRSize = 256

// QRCode writes the link as a PNG, or as text blocks when Terminal is set.
type QRCode struct {
	Size     int
	Out      io.Writer
	Terminal bool
}

func (q QRCode) Name() string { return "qr" }

func (q QRCode) Share(_ context.Context, link Link) Result {
	res := Result{Channel: q.Name(), URL: link.URL}
	if q.Out == nil {
		res.Err = errors.New("no output for qr code")
		return res
	}

	var err error
	if q.Terminal {
		var code *qrcode.QRCode
		if code, err = qrcode.New(link.URL, qrcode.Medium); err == nil {
			_, err = io.WriteString(q.Out, code.ToString(false))
		}
	} else {
		var png []byte
		if png, err = EncodeQR(link.URL, q.Size); err == nil {
			_, err = q.Out.Write(png)
		}
	}
	if err != nil {
		res.Err = errors.Wrap(err, "writing qr code")
		return res
	}
	res.Outcome = Delivered
	return res
}

// EncodeQR renders content as a size x size PNG.
func EncodeQR(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
