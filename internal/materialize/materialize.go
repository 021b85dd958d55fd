// Package materialize writes every cached entry's payload out to a
// directory as plain files, decrypting on the way out.
package materialize

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/Moka-Reads/QuickFetch/internal/entry"
	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"github.com/schollz/progressbar/v3"
)

// Source is the coordinator-facing capability materialize needs: decrypt
// and return one entry's cached value.
type Source interface {
	Get(ctx context.Context, k entry.Key, blank entry.Value) (entry.Value, bool, error)
}

// Blanks maps an entry's Key to an empty Value of the right concrete
// type for Source.Get to decode into, since materialize has no static
// knowledge of which entry kind it's writing.
type Blanks func(e entry.Entry) entry.Value

// WriteAll writes every entry's cached payload into dir, one file per
// entry named after the URL's last path segment. dir is created if
// missing. All writes are issued concurrently and awaited together;
// the first error aborts the remaining ones already in flight at their
// next yield point. A precondition (unchecked here) is that a
// successful fetch has already populated the cache for every entry.
func WriteAll(ctx context.Context, src Source, entries []entry.Entry, blanks Blanks, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return qferrors.Filesystem("write_all", err)
	}

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("writing files"),
		progressbar.OptionShowCount(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, e := range entries {
		wg.Add(1)
		go func(e entry.Entry) {
			defer wg.Done()
			if err := writeOne(ctx, src, e, blanks(e), dir); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			_ = bar.Add(1)
		}(e)
	}
	wg.Wait()
	_ = bar.Close()
	return firstErr
}

func writeOne(ctx context.Context, src Source, e entry.Entry, blank entry.Value, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k := e.Key()
	v, found, err := src.Get(ctx, k, blank)
	if err != nil {
		return err
	}
	if !found {
		return qferrors.Filesystem("write_one", os.ErrNotExist)
	}

	name, err := filenameFromURL(v.URL())
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, name), v.Payload(), 0o644)
}

// filenameFromURL extracts the last path segment of rawURL for use as a
// materialized filename.
func filenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", qferrors.URL("filename", err)
	}
	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", qferrors.URL("filename", os.ErrInvalid)
	}
	return name, nil
}
