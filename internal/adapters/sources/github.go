package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ghostleaks/internal/domain"
)

const defaultGitHubBaseURL = "https://api.github.com"

// GitHub searches public code for the address.
type GitHub struct {
	Token   string
	BaseURL string
	client  *http.Client
}

func NewGitHub(token string, timeout time.Duration) *GitHub {
	return &GitHub{Token: token, BaseURL: defaultGitHubBaseURL, client: newHTTPClient(timeout)}
}

func (g *GitHub) Name() string { return domain.SourceGitHub }

type codeSearchResponse struct {
	Items []struct {
		Path       string `json:"path"`
		HTMLURL    string `json:"html_url"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	} `json:"items"`
}

func (g *GitHub) Lookup(ctx context.Context, email string) ([]domain.Finding, error) {
	if g.Token == "" {
		return nil, domain.ErrSourceUnavailable
	}
	q := url.Values{}
	q.Set("q", `"`+email+`" in:file`)
	q.Set("per_page", "10")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/search/code?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.Token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	var resp codeSearchResponse
	if err := getJSON(g.client, req, &resp); err != nil {
		// Search throttling is reported as 403 with a rate-limit message.
		if hasStatus(err, http.StatusForbidden) {
			return nil, fmt.Errorf("github search forbidden: %w", domain.ErrSourceRateLimited)
		}
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, domain.ErrSourceNotFound
	}
	out := make([]domain.Finding, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, domain.Finding{
			Source:       domain.SourceGitHub,
			Name:         "GitHub Code Exposure",
			Domain:       "github.com",
			Description:  fmt.Sprintf("Address found in %s/%s", item.Repository.FullName, item.Path),
			DataClasses:  []string{"Email addresses"},
			SeverityHint: domain.SeverityHigh,
			Context:      item.HTMLURL,
		})
	}
	return out, nil
}
