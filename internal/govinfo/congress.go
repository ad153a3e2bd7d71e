package govinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultCongressUpstream is the Congress.gov API v3 base.
const DefaultCongressUpstream = "https://api.congress.gov/v3"

// CongressClient looks bill titles up through the Congress.gov bill API.
type CongressClient struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewCongressClient creates a client against upstream
// (DefaultCongressUpstream when empty).
func NewCongressClient(upstream, apiKey string, timeout time.Duration) *CongressClient {
	if upstream == "" {
		upstream = DefaultCongressUpstream
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CongressClient{
		base:   strings.TrimRight(upstream, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// BillURL returns the bill endpoint for a bill, without the API key.
func (c *CongressClient) BillURL(congress, billType, number string) string {
	return fmt.Sprintf("%s/bill/%s/%s/%s",
		c.base, url.PathEscape(congress), url.PathEscape(strings.ToLower(billType)), url.PathEscape(number))
}

type congressBill struct {
	Bill struct {
		Title string `json:"title"`
	} `json:"bill"`
}

// FetchTitle looks up the title of a bill.
func (c *CongressClient) FetchTitle(ctx context.Context, congress, billType, number string) (string, error) {
	q := url.Values{"format": {"json"}}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BillURL(congress, billType, number)+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "uiverify/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch bill: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrBillNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", &UpstreamError{StatusCode: resp.StatusCode}
	}

	var doc congressBill
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode bill: %w", err)
	}
	title := strings.TrimSpace(doc.Bill.Title)
	if title == "" {
		return "", ErrTitleNotFound
	}
	return title, nil
}
