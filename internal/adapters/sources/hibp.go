package sources

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"ghostleaks/internal/domain"
)

const defaultHIBPBaseURL = "https://haveibeenpwned.com/api/v3"

// HIBP queries the HaveIBeenPwned breachedaccount endpoint.
type HIBP struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewHIBP(apiKey string, timeout time.Duration) *HIBP {
	return &HIBP{APIKey: apiKey, BaseURL: defaultHIBPBaseURL, client: newHTTPClient(timeout)}
}

func (h *HIBP) Name() string { return domain.SourceHIBP }

type hibpBreach struct {
	Name        string   `json:"Name"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	PwnCount    int64    `json:"PwnCount"`
	Description string   `json:"Description"`
	DataClasses []string `json:"DataClasses"`
	IsVerified  bool     `json:"IsVerified"`
	IsSensitive bool     `json:"IsSensitive"`
}

func (h *HIBP) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	if h.APIKey == "" {
		return nil, domain.ErrSourceUnavailable
	}
	endpoint := h.BaseURL + "/breachedaccount/" + url.PathEscape(email) + "?truncateResponse=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("hibp-api-key", h.APIKey)

	var breaches []hibpBreach
	if err := getJSON(h.client, req, &breaches, http.StatusNotFound); err != nil {
		return nil, err
	}
	out := make([]domain.Finding, 0, len(breaches))
	for _, b := range breaches {
		out = append(out, domain.Finding{
			Source:      domain.SourceHIBP,
			Name:        b.Name,
			Domain:      registrableDomain(b.Domain),
			BreachDate:  parseDate(b.BreachDate),
			PwnCount:    b.PwnCount,
			Description: b.Description,
			DataClasses: b.DataClasses,
			IsVerified:  b.IsVerified,
			IsSensitive: b.IsSensitive,
		})
	}
	return out, nil
}
