package govinfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultUpstream is the public GovInfo host.
const DefaultUpstream = "https://www.govinfo.gov"

// Returned by both title clients.
var (
	ErrBillNotFound  = errors.New("bill not found")
	ErrTitleNotFound = errors.New("title not found in bill")
)

// maxDocumentBytes caps how much of an upstream document is read.
const maxDocumentBytes = 16 << 20

// Client fetches BILLSTATUS documents.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client against upstream (DefaultUpstream when empty).
func NewClient(upstream string, timeout time.Duration) *Client {
	if upstream == "" {
		upstream = DefaultUpstream
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: strings.TrimRight(upstream, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// BillStatusURL returns the bulk data URL of a bill's status document.
func (c *Client) BillStatusURL(congress, billType, number string) string {
	t := strings.ToLower(billType)
	return fmt.Sprintf("%s/bulkdata/BILLSTATUS/%s/%s/BILLSTATUS-%s%s%s.xml",
		c.base, url.PathEscape(congress), url.PathEscape(t),
		url.PathEscape(congress), url.PathEscape(t), url.PathEscape(number))
}

// UpstreamError is a non-404 failure response.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// FetchTitle looks up the title of a bill.
func (c *Client) FetchTitle(ctx context.Context, congress, billType, number string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BillStatusURL(congress, billType, number), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch bill status: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrBillNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", &UpstreamError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read bill status: %w", err)
	}
	title, err := ParseTitle(data)
	if err != nil {
		return "", err
	}
	if title == "" {
		return "", ErrTitleNotFound
	}
	return title, nil
}
