package transport

import (
	"bytes"
	"context"
	"io"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
)

// Mode selects how a Response's body is pulled into memory.
type Mode int

const (
	// Full issues one read call for the entire body.
	Full Mode = iota
	// Chunked repeatedly pulls fixed-size reads off the body, advancing
	// a progress bar after each one.
	Chunked
	// Streamed copies the body through an io.Writer that advances a
	// progress bar on every write — same accounting as Chunked, a
	// different underlying read primitive (io.Copy vs an explicit loop).
	Streamed
)

// chunkReadSize is the buffer size Chunked reads pull at a time.
const chunkReadSize = 32 * 1024

// Bar is the minimal progress-bar handle a Response Reader drives: add
// n bytes of progress, then close it when the read completes.
type Bar interface {
	Add(n int) error
	Close() error
}

// Reporter hands out a Bar for a given entry display string and known
// (or unknown, 0) total size.
type Reporter interface {
	Bar(display string, total int64) Bar
}

// noopBar satisfies Bar when no Reporter is configured (e.g. mode is
// Full, or notify mode is Silent).
type noopBar struct{}

func (noopBar) Add(int) error { return nil }
func (noopBar) Close() error  { return nil }

// Read drains resp.Body according to mode, emitting progress through
// reporter (which may be nil) when mode is Chunked or Streamed.
func Read(ctx context.Context, resp *Response, display string, mode Mode, reporter Reporter) ([]byte, error) {
	defer resp.Body.Close()

	switch mode {
	case Chunked:
		return readChunked(ctx, resp, display, reporter)
	case Streamed:
		return readStreamed(ctx, resp, display, reporter)
	default:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, qferrors.Network("read_full", err)
		}
		return body, nil
	}
}

func barFor(reporter Reporter, display string, total int64) Bar {
	if reporter == nil {
		return noopBar{}
	}
	if total < 0 {
		total = 0
	}
	return reporter.Bar(display, total)
}

func readChunked(ctx context.Context, resp *Response, display string, reporter Reporter) ([]byte, error) {
	bar := barFor(reporter, display, resp.ContentLength)
	defer bar.Close()

	var out bytes.Buffer
	buf := make([]byte, chunkReadSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, qferrors.Network("read_chunked", err)
		}
		n, err := resp.Body.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
			if addErr := bar.Add(n); addErr != nil {
				return nil, qferrors.Network("read_chunked", addErr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, qferrors.Network("read_chunked", err)
		}
	}
	return out.Bytes(), nil
}

// progressWriter advances bar by the number of bytes written, for use
// as the destination of io.Copy in Streamed mode.
type progressWriter struct {
	bar Bar
	buf *bytes.Buffer
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	if addErr := w.bar.Add(n); addErr != nil {
		return n, addErr
	}
	return n, nil
}

func readStreamed(ctx context.Context, resp *Response, display string, reporter Reporter) ([]byte, error) {
	bar := barFor(reporter, display, resp.ContentLength)
	defer bar.Close()

	var out bytes.Buffer
	w := &progressWriter{bar: bar, buf: &out}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return nil, qferrors.Network("read_streamed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, qferrors.Network("read_streamed", err)
	}
	return out.Bytes(), nil
}
