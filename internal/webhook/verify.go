// Package webhook authenticates media-plane callbacks and reconciles recording outcomes.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aura-classroom/backend/pkg/errs"
)

// HeaderAuthorization carries the callback signature: t="<unix seconds>", s="<hex hmac>".
const HeaderAuthorization = "Livekit-Webhook-Authorization"

// DefaultMaxSkew is how far the signed timestamp may drift from the local clock.
const DefaultMaxSkew = 5 * time.Minute

// Verifier checks callback signatures against a shared secret.
type Verifier struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier creates a verifier. maxSkew <= 0 uses DefaultMaxSkew.
func NewVerifier(secret string, maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &Verifier{secret: []byte(secret), maxSkew: maxSkew, now: time.Now}
}

// Sign returns the hex HMAC-SHA256 of "<t>.<body>": the decimal timestamp, a dot, then
// the raw request body. The signature field itself is never part of the signed input.
func Sign(secret string, t int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(t, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header formats an authorization header value for body signed at t.
func Header(secret string, t time.Time, body []byte) string {
	ts := t.Unix()
	return fmt.Sprintf(`t="%d", s="%s"`, ts, Sign(secret, ts, body))
}

// parseHeader splits `k="v", k2="v2"` into a map. Unquoted values are accepted.
func parseHeader(h string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(h, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return out
}

// Verify authenticates body against the authorization header. Every failure is
// errs.ErrUnauthenticated; the reason is only in the wrapped text.
func (v *Verifier) Verify(body []byte, header string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", errs.ErrUnauthenticated)
	}
	fields := parseHeader(header)
	tRaw, sRaw := fields["t"], fields["s"]
	if tRaw == "" || sRaw == "" {
		return fmt.Errorf("%w: missing signature fields", errs.ErrUnauthenticated)
	}
	ts, err := strconv.ParseInt(tRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", errs.ErrUnauthenticated)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return fmt.Errorf("%w: timestamp outside window", errs.ErrUnauthenticated)
	}
	got, err := hex.DecodeString(sRaw)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding", errs.ErrUnauthenticated)
	}
	want, _ := hex.DecodeString(Sign(string(v.secret), ts, body))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("%w: signature mismatch", errs.ErrUnauthenticated)
	}
	return nil
}
