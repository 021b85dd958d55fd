package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/Moka-Reads/QuickFetch/internal/entry"
)

// Fetch runs one pass of the per-entry decision procedure over every
// bound entry, using the given dispatch strategy. It acquires the
// configured advisory lock for the duration of the pass.
func (c *Coordinator) Fetch(ctx context.Context, dispatch DispatchMode) error {
	ctx, span := c.startSpan(ctx, "coordinator.fetch")
	defer span.End()

	release, err := c.locker.Acquire(ctx, c.lockKey())
	if err != nil {
		return err
	}
	defer release(ctx)

	switch dispatch {
	case Pipelined:
		return c.fetchPipelined(ctx)
	default:
		return c.fetchPerTask(ctx)
	}
}

func (c *Coordinator) lockKey() string {
	return "quickfetch:cache:" + c.store.Path()
}

// fetchPerTask spawns one goroutine per entry, awaits all of them, and
// surfaces the first error encountered. No ordering is guaranteed
// across entries.
func (c *Coordinator) fetchPerTask(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, e := range c.entries {
		wg.Add(1)
		go func(e entry.Entry) {
			defer wg.Done()
			if _, err := c.decideOne(ctx, e); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()
	return firstErr
}

// pipelineJob is the message a producer posts to the consumer: the
// network-side decision already reached, with any mutation left for the
// consumer to serialize.
type pipelineJob struct {
	entry    entry.Entry
	key      entry.Key
	value    entry.Value
	keyBytes []byte
	decision string // "miss", "hit", or "stale"
	prior    []byte // prior record bytes; nil on miss
	body     []byte // freshly fetched plaintext payload; nil on hit
	err      error
}

// fetchPipelined runs the bounded producer/consumer pipeline: producers
// do the network-only work concurrently (bounded by a semaphore sized
// len(entries)) and post completions to a channel of the same capacity;
// a single consumer goroutine serializes every KV mutation, so write
// ordering is observable (non-deterministic, but never interleaved).
func (c *Coordinator) fetchPipelined(ctx context.Context) error {
	n := len(c.entries)
	if n == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan pipelineJob, n)
	sem := make(chan struct{}, n)

	var wg sync.WaitGroup
	for _, e := range c.entries {
		wg.Add(1)
		sem <- struct{}{}
		go func(e entry.Entry) {
			defer wg.Done()
			defer func() { <-sem }()
			jobs <- c.produce(ctx, e)
		}(e)
	}
	go func() {
		wg.Wait()
		close(jobs)
	}()

	var firstErr error
	for job := range jobs {
		if job.err != nil {
			if firstErr == nil {
				firstErr = job.err
				cancel()
			}
			continue
		}
		if firstErr != nil {
			// A prior job already failed the pass; stop mutating the
			// store for anything still in flight.
			continue
		}
		if err := c.consume(ctx, job); err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// produce performs the network-only half of the decision procedure: the
// presence check, the identity comparison against any prior record, and
// the GET+read when a payload needs (re)fetching. It never mutates the
// store.
func (c *Coordinator) produce(ctx context.Context, e entry.Entry) pipelineJob {
	k := e.Key()
	v := e.Value()
	keyBytes := k.Bytes()

	if err := ctx.Err(); err != nil {
		return pipelineJob{err: err}
	}

	prior, found, err := c.store.Get(keyBytes)
	if err != nil {
		return pipelineJob{err: err}
	}

	if !found {
		c.logDecision("miss", k)
		body, err := c.fetchBody(ctx, v.URL(), k.Display())
		if err != nil {
			return pipelineJob{err: err}
		}
		return pipelineJob{entry: e, key: k, value: v, keyBytes: keyBytes, decision: "miss", body: body}
	}

	priorPlain, err := c.decrypt(keyBytes, prior)
	if err != nil {
		return pipelineJob{err: err}
	}
	priorValue, err := v.FromBytes(priorPlain)
	if err != nil {
		return pipelineJob{err: err}
	}

	if v.SameIdentity(priorValue) {
		c.logDecision("hit", k)
		return pipelineJob{entry: e, key: k, value: v, keyBytes: keyBytes, decision: "hit", prior: prior}
	}

	c.logDecision("stale", k)
	body, err := c.fetchBody(ctx, v.URL(), k.Display())
	if err != nil {
		return pipelineJob{err: err}
	}
	return pipelineJob{entry: e, key: k, value: v, keyBytes: keyBytes, decision: "stale", prior: prior, body: body}
}

// consume serializes the KV mutation for a single completed job: insert
// unconditionally on miss, CAS-replace on stale (lost races are not
// retried within the pass), and nothing at all on hit.
func (c *Coordinator) consume(ctx context.Context, job pipelineJob) error {
	start := time.Now()
	switch job.decision {
	case "miss":
		job.value.SetPayload(job.body)
		record, err := c.encrypt(job.keyBytes, job.value.ToBytes())
		if err != nil {
			c.recordDecision(ctx, "miss", job.entry, start, int64(len(job.body)), err)
			return err
		}
		if _, err := c.store.Insert(job.keyBytes, record); err != nil {
			c.recordDecision(ctx, "miss", job.entry, start, int64(len(job.body)), err)
			return err
		}
		c.recordDecision(ctx, "miss", job.entry, start, int64(len(job.body)), nil)
		return nil
	case "stale":
		job.value.SetPayload(job.body)
		record, err := c.encrypt(job.keyBytes, job.value.ToBytes())
		if err != nil {
			c.recordDecision(ctx, "stale", job.entry, start, int64(len(job.body)), err)
			return err
		}
		swapped, err := c.store.CompareAndSwap(job.keyBytes, job.prior, record)
		if err != nil {
			c.recordDecision(ctx, "stale", job.entry, start, int64(len(job.body)), err)
			return err
		}
		if !swapped {
			c.logger.WithField("key", job.key.Display()).Debug("lost compare-and-swap race, not retrying this pass")
		}
		c.recordDecision(ctx, "stale", job.entry, start, int64(len(job.body)), nil)
		return nil
	default: // "hit"
		c.recordDecision(ctx, "hit", job.entry, start, 0, nil)
		return nil
	}
}
