package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"batchplane/pkg/api"
)

// AdminClient posts operator actions to the batchplane admin surface and
// decodes the outcome from the redirect it answers with.
type AdminClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewAdminClient creates a client against the given base URL.
func NewAdminClient(baseURL string) *AdminClient {
	return &AdminClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// the admin surface answers with a redirect carrying the
				// outcome; read it instead of following it
				return http.ErrUseLastResponse
			},
		},
	}
}

// Outcome is the decoded result of one admin action.
type Outcome struct {
	OK    bool
	Error string
	Info  string
	Cost  string
}

// PostForm sends a form post and decodes the outcome redirect.
func (c *AdminClient) PostForm(path string, form url.Values) (*Outcome, error) {
	resp, err := c.HTTPClient.PostForm(c.BaseURL+path, form)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	loc, err := resp.Location()
	if err != nil {
		return nil, fmt.Errorf("redirect without location: %w", err)
	}

	q := loc.Query()
	return &Outcome{
		OK:    q.Get("ok") == "true",
		Error: q.Get("error"),
		Info:  q.Get("info"),
		Cost:  q.Get("cost"),
	}, nil
}

// Overview fetches GET /.
func (c *AdminClient) Overview() (*api.OverviewResponse, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from /", resp.StatusCode)
	}

	var overview api.OverviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		return nil, fmt.Errorf("failed to decode overview: %w", err)
	}
	return &overview, nil
}
