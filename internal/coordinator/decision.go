package coordinator

import (
	"context"
	"net/url"
	"time"

	"github.com/Moka-Reads/QuickFetch/internal/entry"
	"github.com/Moka-Reads/QuickFetch/internal/transport"
)

// fetchBody performs the origin GET and reads the body according to the
// configured response mode, advancing a progress bar when NotifyProgress
// is selected. This is the only place network I/O happens.
func (c *Coordinator) fetchBody(ctx context.Context, rawURL, display string) ([]byte, error) {
	resp, err := c.dispatcher.Get(ctx, rawURL)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFetchError(ctx, "fetch", schemeOf(rawURL), "get")
		}
		return nil, err
	}

	start := time.Now()
	body, err := transport.Read(ctx, resp, display, c.responseMode, c.reporterFor())
	if c.metrics != nil {
		if err != nil {
			c.metrics.RecordFetchError(ctx, "fetch", schemeOf(rawURL), "read")
		} else {
			c.metrics.RecordFetchOperation(ctx, "fetch", schemeOf(rawURL), time.Since(start))
		}
	}
	return body, err
}

// reporterFor returns the configured Reporter only when NotifyProgress is
// active; other notify modes drive no bars.
func (c *Coordinator) reporterFor() transport.Reporter {
	if c.notifyMode != NotifyProgress {
		return nil
	}
	return c.reporter
}

func schemeOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "unknown"
	}
	return u.Scheme
}

// encrypt seals body under entryKey when an Encryptor is configured,
// otherwise returns body unchanged.
func (c *Coordinator) encrypt(entryKey, body []byte) ([]byte, error) {
	if c.encryptor == nil {
		return body, nil
	}
	return c.encryptor.Seal(entryKey, body)
}

// decrypt opens record under entryKey when an Encryptor is configured,
// otherwise returns record unchanged.
func (c *Coordinator) decrypt(entryKey, record []byte) ([]byte, error) {
	if c.encryptor == nil {
		return record, nil
	}
	return c.encryptor.Open(entryKey, record)
}

func (c *Coordinator) logDecision(decision string, k entry.Key) {
	if c.notifyMode != NotifyLog {
		return
	}
	switch decision {
	case "miss", "stale":
		c.logger.WithField("key", k.Display()).Info("caching")
	case "hit":
		c.logger.WithField("key", k.Display()).Debug("cached")
	}
}

// decideOne runs the per-entry decision procedure for a single entry
// and returns the decision reached ("miss", "hit", or "stale") and any
// error.
func (c *Coordinator) decideOne(ctx context.Context, e entry.Entry) (string, error) {
	ctx, span := c.startSpan(ctx, "coordinator.decide_one")
	defer span.End()

	start := time.Now()
	k := e.Key()
	v := e.Value()
	keyBytes := k.Bytes()

	prior, found, err := c.store.Get(keyBytes)
	if err != nil {
		c.recordDecision(ctx, "miss", e, start, 0, err)
		return "", err
	}

	if !found {
		c.logDecision("miss", k)
		body, err := c.fetchBody(ctx, v.URL(), k.Display())
		if err != nil {
			c.recordDecision(ctx, "miss", e, start, 0, err)
			return "", err
		}
		v.SetPayload(body)
		record, err := c.encrypt(keyBytes, v.ToBytes())
		if err != nil {
			c.recordDecision(ctx, "miss", e, start, int64(len(body)), err)
			return "", err
		}
		if _, err := c.store.Insert(keyBytes, record); err != nil {
			c.recordDecision(ctx, "miss", e, start, int64(len(body)), err)
			return "", err
		}
		c.recordDecision(ctx, "miss", e, start, int64(len(body)), nil)
		return "miss", nil
	}

	priorPlain, err := c.decrypt(keyBytes, prior)
	if err != nil {
		c.recordDecision(ctx, "hit", e, start, 0, err)
		return "", err
	}
	priorValue, err := v.FromBytes(priorPlain)
	if err != nil {
		c.recordDecision(ctx, "hit", e, start, 0, err)
		return "", err
	}

	if v.SameIdentity(priorValue) {
		c.logDecision("hit", k)
		c.recordDecision(ctx, "hit", e, start, int64(len(priorValue.Payload())), nil)
		return "hit", nil
	}

	c.logDecision("stale", k)
	body, err := c.fetchBody(ctx, v.URL(), k.Display())
	if err != nil {
		c.recordDecision(ctx, "stale", e, start, 0, err)
		return "", err
	}
	v.SetPayload(body)
	newRecord, err := c.encrypt(keyBytes, v.ToBytes())
	if err != nil {
		c.recordDecision(ctx, "stale", e, start, int64(len(body)), err)
		return "", err
	}

	swapped, err := c.store.CompareAndSwap(keyBytes, prior, newRecord)
	if err != nil {
		c.recordDecision(ctx, "stale", e, start, int64(len(body)), err)
		return "", err
	}
	if !swapped {
		// Lost the race: another writer updated this key since our read.
		// Do not retry within this pass; the next Fetch re-evaluates
		// from scratch, and identity-equal values have identical effects.
		c.logger.WithField("key", k.Display()).Debug("lost compare-and-swap race, not retrying this pass")
	}
	c.recordDecision(ctx, "stale", e, start, int64(len(body)), nil)
	return "stale", nil
}
