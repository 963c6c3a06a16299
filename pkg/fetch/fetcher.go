// Package fetch retrieves pages as streamed bodies for the tag extractor.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultUserAgent = "sitemapper/1.0"

// Fetcher performs HTTP GETs using an underlying http.Client and hands the
// response back with its body still open, so the extractor can consume it
// as a stream. There is no retry: a failed fetch means the page contributes
// no tags and the worker moves on.
type Fetcher struct {
	client    *http.Client
	userAgent string
	log       *logrus.Entry
}

// NewFetcher creates a Fetcher around client. A nil client gets the default
// client from NewClient.
func NewFetcher(client *http.Client, log *logrus.Entry) *Fetcher {
	if client == nil {
		client = NewClient()
	}
	return &Fetcher{
		client:    client,
		userAgent: defaultUserAgent,
		log:       log,
	}
}

// NewClient builds the shared HTTP client: environment proxy support,
// bounded dial and handshake timeouts, keep-alives on.
func NewClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           100,
		MaxIdleConnsPerHost:    10,
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		MaxResponseHeaderBytes: 1 << 20,
	}
	return &http.Client{
		Timeout:   60 * time.Second,
		Transport: transport,
	}
}

// Fetch GETs url and returns the response with an open body. The caller
// must close resp.Body. Non-2xx statuses count as fetch failures so error
// pages do not feed the extractor.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %q: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.log.WithField("url", url).Debug("Fetching page")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %q: unexpected status %s", url, resp.Status)
	}
	return resp, nil
}
