package share

import (
	"net/url"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
)

const (
	whatsAppBaseURL = "https://wa.me/"
	expiryLayout    = "2 Jan 2006 15:04 MST"
)

// Templates renders the share messages. Sources are handlebars; use {{{var}}} for raw text.
// Variables: name, location, sender, url, expires.
type Templates struct {
	whatsApp    *raymond.Template
	mailSubject *raymond.Template
	mailBody    *raymond.Template
}

func NewTemplates(conf core.ShareConfig) (*Templates, error) {
	parse := func(name, src string) (*raymond.Template, error) {
		tpl, err := raymond.Parse(src)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s template", name)
		}
		return tpl, nil
	}

	var tpls Templates
	var err error
	if tpls.whatsApp, err = parse("whatsapp", conf.WhatsAppTemplate); err != nil {
		return nil, err
	}
	if tpls.mailSubject, err = parse("mail subject", conf.MailSubjectTemplate); err != nil {
		return nil, err
	}
	if tpls.mailBody, err = parse("mail body", conf.MailBodyTemplate); err != nil {
		return nil, err
	}
	return &tpls, nil
}

func templateContext(link Link) map[string]string {
	return map[string]string{
		"name":     link.BriefingName,
		"location": link.Location,
		"sender":   link.SentBy,
		"url":      link.URL,
		"expires":  link.ExpiresAt.UTC().Format(expiryLayout),
	}
}

func (t *Templates) WhatsAppMessage(link Link) (string, error) {
	msg, err := t.whatsApp.Exec(templateContext(link))
	return msg, errors.Wrap(err, "rendering whatsapp message")
}

func (t *Templates) MailSubject(link Link) (string, error) {
	subj, err := t.mailSubject.Exec(templateContext(link))
	return subj, errors.Wrap(err, "rendering mail subject")
}

func (t *Templates) MailBody(link Link) (string, error) {
	body, err := t.mailBody.Exec(templateContext(link))
	return body, errors.Wrap(err, "rendering mail body")
}

// escapeComponent encodes s like a URI component: spaces become %20, not "+".
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// WhatsAppURL returns the wa.me deep link pre-filled with message.
func WhatsAppURL(message string) string {
	return whatsAppBaseURL + "?text=" + escapeComponent(message)
}

// MailtoURL returns a mailto: link; to may be empty.
func MailtoURL(to, subject, body string) string {
	return "mailto:" + url.PathEscape(to) +
		"?subject=" + escapeComponent(subject) +
		"&body=" + escapeComponent(body)
}
