package coordinator

import (
	"context"
	"time"

	"github.com/Moka-Reads/QuickFetch/internal/entry"
	"github.com/Moka-Reads/QuickFetch/internal/materialize"
)

// logAccess records a direct-access operation on the audit trail, when
// one is configured. k may be nil for whole-store operations.
func (c *Coordinator) logAccess(op string, k entry.Key, start time.Time, err error) {
	if c.audit == nil {
		return
	}
	display := ""
	if k != nil {
		display = k.Display()
	}
	c.audit.LogAccess(op, display, "", "", "", err == nil, err, time.Since(start))
}

// Get returns the decrypted value stored under k, or found=false if no
// record exists.
func (c *Coordinator) Get(ctx context.Context, k entry.Key, blank entry.Value) (v entry.Value, found bool, err error) {
	_, span := c.startSpan(ctx, "coordinator.get")
	defer span.End()
	defer func(start time.Time) { c.logAccess("get", k, start, err) }(time.Now())

	keyBytes := k.Bytes()
	record, found, err := c.store.Get(keyBytes)
	if err != nil || !found {
		return nil, false, err
	}
	plain, err := c.decrypt(keyBytes, record)
	if err != nil {
		return nil, false, err
	}
	v, err = blank.FromBytes(plain)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Remove deletes the record under k unconditionally.
func (c *Coordinator) Remove(k entry.Key) error {
	start := time.Now()
	_, err := c.store.Remove(k.Bytes())
	c.logAccess("remove", k, start, err)
	return err
}

// Update replaces the record under k with newValue via compare-and-swap
// when newValue's identity differs from what is stored; a matching
// identity is a no-op.
func (c *Coordinator) Update(ctx context.Context, k entry.Key, newValue entry.Value) (err error) {
	_, span := c.startSpan(ctx, "coordinator.update")
	defer span.End()
	defer func(start time.Time) { c.logAccess("update", k, start, err) }(time.Now())

	keyBytes := k.Bytes()
	prior, found, err := c.store.Get(keyBytes)
	if err != nil {
		return err
	}
	if !found {
		record, err := c.encrypt(keyBytes, newValue.ToBytes())
		if err != nil {
			return err
		}
		_, err = c.store.Insert(keyBytes, record)
		return err
	}

	priorPlain, err := c.decrypt(keyBytes, prior)
	if err != nil {
		return err
	}
	priorValue, err := newValue.FromBytes(priorPlain)
	if err != nil {
		return err
	}
	if newValue.SameIdentity(priorValue) {
		return nil
	}

	record, err := c.encrypt(keyBytes, newValue.ToBytes())
	if err != nil {
		return err
	}
	_, err = c.store.CompareAndSwap(keyBytes, prior, record)
	return err
}

// Pair is one decrypted (key, value) record, keyed by its raw stored key
// bytes since Pairs has no Entry to recover a typed Key from.
type Pair struct {
	KeyBytes []byte
	Value    entry.Value
}

// Pairs iterates every stored record, decrypting each value under its
// own key bytes using blank as the concrete type to decode into.
func (c *Coordinator) Pairs(blank entry.Value) ([]Pair, error) {
	var out []Pair
	err := c.store.Pairs(func(key, value []byte) error {
		plain, err := c.decrypt(key, value)
		if err != nil {
			return err
		}
		v, err := blank.FromBytes(plain)
		if err != nil {
			return err
		}
		out = append(out, Pair{KeyBytes: append([]byte(nil), key...), Value: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteAll materializes every bound entry's cached payload into dir,
// one file per entry named after the URL's last path segment. A
// successful Fetch must have populated the cache first.
func (c *Coordinator) WriteAll(ctx context.Context, dir string) error {
	return materialize.WriteAll(ctx, c, c.entries, func(e entry.Entry) entry.Value { return e.Value() }, dir)
}

// Clear empties the KV store without removing the underlying file.
func (c *Coordinator) Clear() error {
	start := time.Now()
	err := c.store.Clear()
	c.logAccess("clear", nil, start, err)
	return err
}

// DropTree removes and recreates the store's bucket; the store
// implements it as Clear, so the two have the same effect.
func (c *Coordinator) DropTree() error {
	return c.store.DropTree()
}

// RemoveCacheDir deletes the cache directory (and the underlying store
// file) entirely. The coordinator must not be used after this without
// reopening.
func (c *Coordinator) RemoveCacheDir() error {
	return c.store.RemoveDir()
}

// Export returns every stored record verbatim (still encrypted, if an
// Encryptor is configured), for backup.
func (c *Coordinator) Export() (map[string][]byte, error) {
	return c.store.Export()
}

// Import loads data verbatim into the store, overwriting any existing
// keys it names.
func (c *Coordinator) Import(data map[string][]byte) error {
	return c.store.Import(data)
}
