package sources

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"ghostleaks/internal/domain"
)

const defaultBreachDirectoryBaseURL = "https://breachdirectory.org/api"

// BreachDirectory queries the BreachDirectory search API.
type BreachDirectory struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewBreachDirectory(apiKey string, timeout time.Duration) *BreachDirectory {
	return &BreachDirectory{APIKey: apiKey, BaseURL: defaultBreachDirectoryBaseURL, client: newHTTPClient(timeout)}
}

func (b *BreachDirectory) Name() string { return domain.SourceBreachDirectory }

type bdResponse struct {
	Found  bool `json:"found"`
	Result []struct {
		Source string   `json:"source"`
		Domain string   `json:"domain"`
		Date   string   `json:"date"`
		Fields []string `json:"fields"`
	} `json:"result"`
}

func (b *BreachDirectory) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	if b.APIKey == "" {
		return nil, domain.ErrSourceUnavailable
	}
	q := url.Values{}
	q.Set("email", email)
	q.Set("api_key", b.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp bdResponse
	if err := getJSON(b.client, req, &resp, http.StatusNotFound); err != nil {
		return nil, err
	}
	if !resp.Found || len(resp.Result) == 0 {
		return nil, domain.ErrSourceNotFound
	}
	out := make([]domain.Finding, 0, len(resp.Result))
	for _, r := range resp.Result {
		name := r.Source
		if name == "" {
			name = "Unknown"
		}
		fields := r.Fields
		if fields == nil {
			fields = []string{}
		}
		out = append(out, domain.Finding{
			Source:      domain.SourceBreachDirectory,
			Name:        name,
			Domain:      registrableDomain(r.Domain),
			BreachDate:  parseDate(r.Date),
			Description: "Data found in " + name,
			DataClasses: fields,
		})
	}
	return out, nil
}
