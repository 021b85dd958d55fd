// Package kv provides the embedded, ordered, atomically-mutable key/value
// store the coordinator caches entries in. It wraps go.etcd.io/bbolt, a
// single-file B+tree store.
package kv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	bolt "go.etcd.io/bbolt"
)

// defaultBucket is the single bucket every Store uses as its "tree." bbolt
// supports multiple buckets per file; the coordinator only ever needs one
// per cache directory, so the bucket name is fixed rather than configurable.
var defaultBucket = []byte("quickfetch")

// Store is an embedded, ordered key/value tree backed by a single bbolt
// file. All mutating operations are serialized by bbolt's writer lock;
// CompareAndSwap gives the coordinator the lost-race-means-no-retry
// semantics it needs without an external lock.
type Store struct {
	db   *bolt.DB
	path string
}

// dbFilename is the bbolt file kept inside the cache directory. Callers
// address the store by directory; the file inside is an implementation
// detail.
const dbFilename = "cache.db"

// Open creates or opens the cache directory at path, ensuring the bbolt
// file and backing bucket inside it exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, qferrors.Store("open", fmt.Errorf("create cache dir: %w", err))
	}
	db, err := bolt.Open(filepath.Join(path, dbFilename), 0o644, nil)
	if err != nil {
		return nil, qferrors.Store("open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, qferrors.Store("open", fmt.Errorf("create bucket: %w", err))
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the cache directory the store was opened from.
func (s *Store) Path() string { return s.path }

// Close releases the underlying file handle and its lock.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return qferrors.Store("close", err)
	}
	return nil
}

// Get reads the value stored for key, or (nil, false) if absent.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(defaultBucket).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, qferrors.Store("get", err)
	}
	return out, found, nil
}

// Insert unconditionally sets key to value, returning the prior value if
// one existed.
func (s *Store) Insert(key, value []byte) ([]byte, error) {
	var prev []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		if old := b.Get(key); old != nil {
			prev = append([]byte(nil), old...)
		}
		return b.Put(key, value)
	})
	if err != nil {
		return nil, qferrors.Store("insert", err)
	}
	return prev, nil
}

// CompareAndSwap sets key to newValue iff the current value equals
// expected (nil expected means "key must be absent"). It reports whether
// the swap happened; a false return with a nil error means another writer
// won the race and the coordinator must not retry within the same pass.
func (s *Store) CompareAndSwap(key, expected, newValue []byte) (bool, error) {
	swapped := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		current := b.Get(key)
		if !bytes.Equal(current, expected) {
			return nil
		}
		swapped = true
		return b.Put(key, newValue)
	})
	if err != nil {
		return false, qferrors.Store("compare_and_swap", err)
	}
	return swapped, nil
}

// Remove deletes key, returning the removed value if one was present.
func (s *Store) Remove(key []byte) ([]byte, error) {
	var prev []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		if old := b.Get(key); old != nil {
			prev = append([]byte(nil), old...)
		}
		return b.Delete(key)
	})
	if err != nil {
		return nil, qferrors.Store("remove", err)
	}
	return prev, nil
}

// Update atomically replaces key's value with the result of applying fn to
// the current value (nil if absent). Returning a nil replacement with a
// nil error deletes the key.
func (s *Store) Update(key []byte, fn func(current []byte) ([]byte, error)) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		current := b.Get(key)
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return b.Delete(key)
		}
		return b.Put(key, next)
	})
	if err != nil {
		return qferrors.Store("update", err)
	}
	return nil
}

// Pairs iterates every key/value pair in ascending key order, invoking fn
// for each. Iteration stops at the first error fn returns.
func (s *Store) Pairs(fn func(key, value []byte) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(defaultBucket).ForEach(func(k, v []byte) error {
			return fn(k, v)
		})
	})
	if err != nil {
		return qferrors.Store("pairs", err)
	}
	return nil
}

// Export snapshots the whole tree into a map, for the coordinator's
// export capability.
func (s *Store) Export() (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.Pairs(func(k, v []byte) error {
		out[string(k)] = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Import writes every pair in data into the tree, overwriting existing
// keys. It does not clear the tree first.
func (s *Store) Import(data map[string][]byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		for k, v := range data {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return qferrors.Store("import", err)
	}
	return nil
}

// Clear removes every key from the tree, leaving the store file and
// bucket in place.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(defaultBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(defaultBucket)
		return err
	})
	if err != nil {
		return qferrors.Store("clear", err)
	}
	return nil
}

// DropTree removes the bucket entirely and recreates it empty;
// semantically equivalent to Clear for a single-bucket store, kept as
// its own method so callers can ask for the heavier reset by name.
func (s *Store) DropTree() error {
	return s.Clear()
}

// RemoveDir closes the store and deletes the cache directory entirely,
// for a full-cache teardown.
func (s *Store) RemoveDir() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.path); err != nil {
		return qferrors.Filesystem("remove_dir", err)
	}
	return nil
}
