// Package fetch implements the HTTP fetcher (C1): GET a URL, follow
// redirects, and return either text or bytes, mapping any non-2xx
// response to a typed DownloadError.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/xwin-go/xwin/internal/httputil"
	"github.com/xwin-go/xwin/internal/xwinerr"
)

// Fetcher performs HTTP GETs against the secure client, surfacing
// non-2xx responses as *xwinerr.DownloadError.
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher backed by httputil's SSRF-hardened client,
// restricted to the Microsoft manifest/CDN hosts this tool talks to.
func New() *Fetcher {
	return &Fetcher{client: httputil.NewSecureClient(httputil.MicrosoftOptions())}
}

// FetchBytes performs fetch-bytes(url): GET the URL, follow redirects,
// and return the full response body.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xwinerr.NewDownloadError(resp.StatusCode, fmt.Sprintf("reading body from %s: %v", url, err))
	}
	return body, nil
}

// FetchText performs fetch-text(url), decoding the response body as
// UTF-8 text.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	b, err := f.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (f *Fetcher) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &xwinerr.DownloadError{Message: fmt.Sprintf("building request for %s: %v", url, err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &xwinerr.DownloadError{Message: fmt.Sprintf("requesting %s: %v", url, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.StatusCode
		resp.Body.Close()
		return nil, xwinerr.NewDownloadError(status, fmt.Sprintf("unexpected status fetching %s", url))
	}
	return resp, nil
}
