// Package transport provides the GET capability the coordinator fetches
// entry payloads through: http(s):// via net/http with brotli accepted
// by default, and s3://bucket/key via the adapted S3 backend client.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
)

// Response is the result of a successful Get: the response body and its
// declared length, if known (used to size progress bars).
type Response struct {
	Body          io.ReadCloser
	ContentLength int64
}

// Getter fetches the bytes at a URL. Implementations must be safe for
// concurrent use by multiple goroutines; one shared instance serves
// every in-flight fetch.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
}

// Dispatcher routes a Get call to the Getter registered for the URL's
// scheme.
type Dispatcher struct {
	http Getter
	s3   Getter
}

// NewDispatcher builds a Dispatcher from the http(s) and s3 Getters.
// Either may be nil; a nil Getter for a scheme that is never requested
// is fine, but using it returns a URL error.
func NewDispatcher(http, s3 Getter) *Dispatcher {
	return &Dispatcher{http: http, s3: s3}
}

// Get dispatches rawURL to the Getter registered for its scheme.
func (d *Dispatcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, qferrors.URL("parse", fmt.Errorf("%s: %w", rawURL, err))
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if d.http == nil {
			return nil, qferrors.URL("dispatch", fmt.Errorf("no http(s) transport configured for %s", rawURL))
		}
		return d.http.Get(ctx, rawURL)
	case "s3":
		if d.s3 == nil {
			return nil, qferrors.URL("dispatch", fmt.Errorf("no s3 transport configured for %s", rawURL))
		}
		return d.s3.Get(ctx, rawURL)
	default:
		return nil, qferrors.URL("dispatch", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, rawURL))
	}
}
