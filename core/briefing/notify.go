package briefing

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/share"
)

const signingLinkTemplate = "signing_link"

// MailNotifier emails signing links through the app's EmailService.
type MailNotifier struct {
	mailSvc core.EmailService
}

var _ share.Notifier = (*MailNotifier)(nil)

func NewMailNotifier(mailSvc core.EmailService) *MailNotifier {
	return &MailNotifier{mailSvc: mailSvc}
}

func (n *MailNotifier) NotifySigningLink(ctx context.Context, notif share.Notification) error {
	addr, err := mail.ParseAddress(notif.RecipientEmail)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "email", Error: "invalid email address"})
	}

	link := notif.Link
	msg := &core.EmailMessage{
		To:           []mail.Address{*addr},
		Subject:      "Please sign: " + link.BriefingName,
		TemplateName: signingLinkTemplate,
		TemplateData: map[string]interface{}{
			"BriefingName":  link.BriefingName,
			"Location":      link.Location,
			"ConductorName": link.SentBy,
			"SigningURL":    link.URL,
			"ExpiresAt":     link.ExpiresAt.UTC().Format("Monday 2 January 2006 at 15:04 MST"),
		},
	}
	return errors.Wrap(n.mailSvc.SendMessage(ctx, msg), "sending signing link email")
}
