package sources

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"ghostleaks/internal/domain"
)

const defaultCustomSearchURL = "https://www.googleapis.com/customsearch/v1"

// Pastebin looks for the address in public pastes through Google Custom Search.
type Pastebin struct {
	APIKey   string
	EngineID string
	BaseURL  string
	client   *http.Client
}

func NewPastebin(apiKey, engineID string, timeout time.Duration) *Pastebin {
	return &Pastebin{APIKey: apiKey, EngineID: engineID, BaseURL: defaultCustomSearchURL, client: newHTTPClient(timeout)}
}

func (p *Pastebin) Name() string { return domain.SourcePastebin }

type cseResponse struct {
	Items []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (p *Pastebin) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	if p.APIKey == "" || p.EngineID == "" {
		return nil, domain.ErrSourceUnavailable
	}
	q := url.Values{}
	q.Set("key", p.APIKey)
	q.Set("cx", p.EngineID)
	q.Set("q", `site:pastebin.com "`+email+`"`)
	q.Set("num", "10")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp cseResponse
	if err := getJSON(p.client, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, domain.ErrSourceNotFound
	}
	out := make([]domain.Finding, 0, len(resp.Items))
	for _, item := range resp.Items {
		desc := item.Title
		if item.Snippet != "" {
			desc += ": " + item.Snippet
		}
		out = append(out, domain.Finding{
			Source:       domain.SourcePastebin,
			Name:         "Pastebin Leak",
			Domain:       "pastebin.com",
			Description:  desc,
			DataClasses:  []string{"Email addresses"},
			SeverityHint: domain.SeverityMedium,
			Context:      item.Link,
		})
	}
	return out, nil
}
