// Package functions calls the hosted edge functions: the signing link mailer and the PDF renderer.
package functions

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/document"
	"github.com/elecmate/sitebrief/core/share"
)

type Client struct {
	baseURL      string
	apiKey       string
	notifyPath   string
	documentPath string
	http         rest.Client
}

var (
	_ share.Notifier         = (*Client)(nil)
	_ document.Generator     = (*Client)(nil)
	_ document.StatusChecker = (*Client)(nil)
)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL:      strings.TrimRight(conf.Functions.BaseURL, "/"),
		apiKey:       conf.Functions.APIKey,
		notifyPath:   conf.Functions.NotifyPath,
		documentPath: conf.Functions.DocumentPath,
		http:         rest.Client{HTTPClient: &http.Client{Timeout: conf.Functions.Timeout}},
	}
}

type (
	notifyRequest struct {
		BriefingID     string `json:"briefingId"`
		RecipientEmail string `json:"recipientEmail"`
		SigningURL     string `json:"signingUrl"`
	}

	notifyResponse struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}

	documentRequest struct {
		Mode       string             `json:"mode"`
		BriefingID string             `json:"briefingId,omitempty"`
		DocumentID string             `json:"documentId,omitempty"`
		Briefing   *briefing.Briefing `json:"briefing,omitempty"`
	}
)

// NotifySigningLink asks the mailer function to send the signing link to one recipient.
func (c *Client) NotifySigningLink(ctx context.Context, notif share.Notification) error {
	var res notifyResponse
	err := c.post(ctx, c.notifyPath, notifyRequest{
		BriefingID:     notif.Link.BriefingID,
		RecipientEmail: notif.RecipientEmail,
		SigningURL:     notif.Link.URL,
	}, &res)
	if err != nil {
		return errors.Wrap(err, "calling notification function")
	}
	if !res.Success {
		if res.Error == "" {
			res.Error = "unknown error"
		}
		return errors.Errorf("notification function: %s", res.Error)
	}
	return nil
}

// Generate asks the renderer for the briefing's PDF report.
func (c *Client) Generate(ctx context.Context, b briefing.Briefing) (document.Status, error) {
	var st document.Status
	err := c.post(ctx, c.documentPath, documentRequest{Mode: "generate", BriefingID: b.ID, Briefing: &b}, &st)
	return st, errors.Wrap(err, "calling document function")
}

func (c *Client) CheckStatus(ctx context.Context, documentID string) (document.Status, error) {
	var st document.Status
	err := c.post(ctx, c.documentPath, documentRequest{Mode: "status", DocumentID: documentID}, &st)
	return st, errors.Wrap(err, "checking document status")
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}
	req := rest.Request{
		Method:  rest.Post,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: body,
	}
	if c.apiKey != "" {
		req.Headers["Authorization"] = "Bearer " + c.apiKey
	}

	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	httpRes, err := c.http.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return err
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("status: %d - body: %s", res.StatusCode, res.Body)
	}
	return errors.Wrap(json.Unmarshal([]byte(res.Body), out), "decoding response")
}
