// Package client wraps the HTTP session used to talk to image servers.
// A Client is constructed once and injected into every protocol fetcher,
// replacing any notion of global session state.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultUserAgent = "slidestitch/1.0.0"

// Client issues authenticated requests against a slide server.
type Client struct {
	baseURL string
	client  *http.Client

	// Headers are attached to every request, e.g. API keys or cookies.
	// Request signing itself is the deployment's concern, not ours.
	Headers map[string]string

	UserAgent string
}

// New returns a client rooted at baseURL with a sane request timeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 60 * time.Second},
		UserAgent: defaultUserAgent,
	}
}

// BaseURL returns the server root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, rawURL string, query url.Values) (*http.Request, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// GetJSON fetches path relative to the base URL and decodes the JSON body
// into v.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	req, err := c.newRequest(ctx, c.baseURL+"/"+strings.TrimLeft(path, "/"), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", req.URL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// DownloadFile streams the resource at rawURL (an absolute URL, with query
// appended) into dest. The body is written to a temp file alongside dest
// and renamed into place, so a failed download never leaves a partial file
// behind for the cache to mistake for a hit.
func (c *Client) DownloadFile(ctx context.Context, rawURL string, query url.Values, dest string) error {
	req, err := c.newRequest(ctx, rawURL, query)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", req.URL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
