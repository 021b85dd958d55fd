package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"github.com/andybalholm/brotli"
)

// brotliTransport wraps a RoundTripper to advertise and transparently
// decode brotli response bodies.
type brotliTransport struct {
	base http.RoundTripper
}

func (t *brotliTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Header.Get("Content-Encoding") == "br" {
		resp.Body = &brotliReadCloser{br: brotli.NewReader(resp.Body), inner: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	}
	return resp, nil
}

type brotliReadCloser struct {
	br    io.Reader
	inner io.Closer
}

func (b *brotliReadCloser) Read(p []byte) (int, error) { return b.br.Read(p) }
func (b *brotliReadCloser) Close() error               { return b.inner.Close() }

// HTTPGetter fetches http(s):// URLs with brotli content-encoding
// enabled by default.
type HTTPGetter struct {
	client *http.Client
}

// NewHTTPGetter builds an HTTPGetter around client, or a default
// *http.Client with the brotli-accepting transport if client is nil.
func NewHTTPGetter(client *http.Client) *HTTPGetter {
	if client == nil {
		client = &http.Client{}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	shared := *client
	shared.Transport = &brotliTransport{base: base}
	return &HTTPGetter{client: &shared}
}

// Get issues a GET request and returns the (possibly brotli-decoded)
// response body.
func (g *HTTPGetter) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, qferrors.Network("get", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, qferrors.Network("get", err)
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, qferrors.Network("get", fmt.Errorf("%s: unexpected status %s", rawURL, resp.Status))
	}
	return &Response{Body: resp.Body, ContentLength: resp.ContentLength}, nil
}
