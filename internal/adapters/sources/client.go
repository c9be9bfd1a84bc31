// Package sources holds one adapter per breach-intelligence provider. Each
// adapter turns its provider's response into domain.Finding values; nothing
// outside this package parses provider payloads.
package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"ghostleaks/internal/domain"
)

const userAgent = "GhostLeaks-Scanner"

// maxBody bounds how much of a provider response is read.
const maxBody = 4 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs req and decodes a 2xx body into out. Status codes map onto
// the adapter error taxonomy; notFound lists statuses meaning "no records".
func getJSON(client *http.Client, req *http.Request, out any, notFound ...int) error {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	for _, code := range notFound {
		if resp.StatusCode == code {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
			return domain.ErrSourceNotFound
		}
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &statusError{code: resp.StatusCode, kind: domain.ErrSourceRateLimited}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &statusError{code: resp.StatusCode, kind: domain.ErrSourceTransient}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, domain.ErrSourceTransient)
	}
	return nil
}

// statusError carries the provider status code behind a taxonomy error.
type statusError struct {
	code int
	kind error
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %v", e.code, e.kind) }
func (e *statusError) Unwrap() error { return e.kind }

func hasStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}

// classifyTransport folds timeouts, cancellation and connection faults into
// the transient kind. The request URL is dropped since it carries the email.
func classifyTransport(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	return fmt.Errorf("%v: %w", err, domain.ErrSourceTransient)
}

// registrableDomain reduces a provider-reported host to its eTLD+1.
func registrableDomain(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimPrefix(host, "www.")
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

// parseDate accepts the date layouts providers are known to send.
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01", "2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
