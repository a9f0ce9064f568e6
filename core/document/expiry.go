// Package document keeps briefing PDF links usable: presigned URLs are checked for expiry
// and regenerated through the renderer function, polling it until the document is ready.
package document

import (
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultExpiryMargin is how long a URL must still be valid to be handed out.
	DefaultExpiryMargin = 5 * time.Minute

	amzDateParam    = "X-Amz-Date"
	amzExpiresParam = "X-Amz-Expires"
	amzDateLayout   = "20060102T150405Z"
)

var ErrNoExpiry = errors.New("url has no valid X-Amz-Date/X-Amz-Expires parameters")

// URLExpiry returns when a presigned URL stops working: X-Amz-Date plus X-Amz-Expires seconds.
func URLExpiry(rawURL string) (time.Time, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing url")
	}
	q := u.Query()

	date, expires := q.Get(amzDateParam), q.Get(amzExpiresParam)
	if date == "" || expires == "" {
		return time.Time{}, ErrNoExpiry
	}
	signedAt, err := time.Parse(amzDateLayout, date)
	if err != nil {
		return time.Time{}, ErrNoExpiry
	}
	secs, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || secs < 0 {
		return time.Time{}, ErrNoExpiry
	}
	return signedAt.Add(time.Duration(secs) * time.Second), nil
}

// IsURLExpired reports whether rawURL expires within DefaultExpiryMargin of now.
// URLs without parsable expiry parameters count as expired.
func IsURLExpired(rawURL string, now time.Time) bool {
	return ExpiresWithin(rawURL, now, DefaultExpiryMargin)
}

func ExpiresWithin(rawURL string, now time.Time, margin time.Duration) bool {
	expiry, err := URLExpiry(rawURL)
	if err != nil {
		return true
	}
	return expiry.Sub(now) < margin
}
