package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"github.com/Moka-Reads/QuickFetch/internal/s3"
)

// S3Getter fetches s3://bucket/key URLs through the S3 backend client
// (internal/s3), using only its GetObject read path.
type S3Getter struct {
	client s3.Client
}

// NewS3Getter wraps an already-constructed s3.Client.
func NewS3Getter(client s3.Client) *S3Getter {
	return &S3Getter{client: client}
}

// parseS3URL splits s3://bucket/key into its bucket and key parts.
func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3:// url: %s", rawURL)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must be s3://bucket/key, got %s", rawURL)
	}
	return bucket, key, nil
}

// Get fetches the object at s3://bucket/key.
func (g *S3Getter) Get(ctx context.Context, rawURL string) (*Response, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, qferrors.URL("parse", err)
	}

	body, metadata, err := g.client.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, qferrors.Network("get", err)
	}

	contentLength := int64(-1)
	if v, ok := metadata["content-length"]; ok {
		if parsed, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			contentLength = parsed
		}
	}

	return &Response{Body: body, ContentLength: contentLength}, nil
}
