// Package coordinator implements the fetch/cache coordinator: the
// per-entry cache-decision state machine, the two concurrency dispatch
// modes, and the direct-access and lifecycle operations the rest of
// QuickFetch (the watch loop, the materializer, the CLI) drives.
package coordinator

import (
	"context"
	"time"

	"github.com/Moka-Reads/QuickFetch/internal/audit"
	"github.com/Moka-Reads/QuickFetch/internal/crypto"
	"github.com/Moka-Reads/QuickFetch/internal/entry"
	"github.com/Moka-Reads/QuickFetch/internal/kv"
	"github.com/Moka-Reads/QuickFetch/internal/lock"
	"github.com/Moka-Reads/QuickFetch/internal/metrics"
	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"github.com/Moka-Reads/QuickFetch/internal/transport"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ResponseMode selects how the Response Reader acquires a GET body.
type ResponseMode = transport.Mode

const (
	Full     = transport.Full
	Chunked  = transport.Chunked
	Streamed = transport.Streamed
)

// NotifyMode selects how the coordinator reports progress during fetch.
type NotifyMode int

const (
	// NotifyLog emits a logrus line per cache decision.
	NotifyLog NotifyMode = iota
	// NotifyProgress drives a per-entry progress bar; requires ResponseMode
	// to be Chunked or Streamed, since Full has no intermediate chunks to
	// report progress against.
	NotifyProgress
	// NotifySilent reports nothing.
	NotifySilent
)

// DispatchMode selects the concurrency strategy fetch uses for one pass.
type DispatchMode int

const (
	// PerTask spawns one goroutine per entry, awaits all, and surfaces the
	// first error.
	PerTask DispatchMode = iota
	// Pipelined runs a bounded producer/consumer pipeline: producers do
	// the network work concurrently, a single consumer goroutine
	// serializes every KV mutation.
	Pipelined
)

// Options configures a Coordinator at construction time.
type Options struct {
	// Encryptor seals/opens cache records. Nil means store plaintext.
	Encryptor crypto.Encryptor
	// Locker guards the cache directory against concurrent coordinator
	// processes. Nil defaults to lock.NoopLocker.
	Locker lock.Locker
	// Metrics records Prometheus/OTel instrumentation. Nil means no metrics.
	Metrics *metrics.Metrics
	// Logger receives structured log lines. Nil defaults to logrus.StandardLogger().
	Logger *logrus.Logger
	// Dispatcher performs the origin GET for both http(s):// and s3:// URLs.
	Dispatcher *transport.Dispatcher
	// Reporter drives progress bars for Chunked/Streamed reads under
	// NotifyProgress. Required only when NotifyProgress is selected.
	Reporter transport.Reporter
	// Audit records every cache decision and every Get, Remove, Update and
	// Clear call as a structured audit event. Nil disables the audit trail.
	Audit audit.Logger
}

// Coordinator is the cache-decision state machine and concurrency
// driver. It owns one KV store for its lifetime and a list of entries
// that only SetEntries replaces.
type Coordinator struct {
	store      *kv.Store
	entries    []entry.Entry
	encryptor  crypto.Encryptor
	locker     lock.Locker
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	dispatcher *transport.Dispatcher
	reporter   transport.Reporter
	audit      audit.Logger
	tracer     trace.Tracer

	responseMode ResponseMode
	notifyMode   NotifyMode
}

// New opens the KV store at cachePath and binds entries and opts.
func New(entries []entry.Entry, cachePath string, opts Options) (*Coordinator, error) {
	store, err := kv.Open(cachePath)
	if err != nil {
		return nil, err
	}

	locker := opts.Locker
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Coordinator{
		store:        store,
		entries:      entries,
		encryptor:    opts.Encryptor,
		locker:       locker,
		metrics:      opts.Metrics,
		logger:       logger,
		dispatcher:   opts.Dispatcher,
		reporter:     opts.Reporter,
		audit:        opts.Audit,
		tracer:       otel.Tracer("quickfetch/coordinator"),
		responseMode: Full,
		notifyMode:   NotifyLog,
	}, nil
}

// Close releases the underlying KV store handle.
func (c *Coordinator) Close() error {
	return c.store.Close()
}

// SetResponseMode selects Full, Chunked, or Streamed body acquisition.
func (c *Coordinator) SetResponseMode(mode ResponseMode) {
	c.responseMode = mode
}

// SetNotifyMode selects Log, Progress, or Silent reporting. Progress
// requires the response mode to already be Chunked or Streamed —
// a Full read has no per-chunk updates to drive a bar — and that is
// enforced here rather than deferred to fetch time.
func (c *Coordinator) SetNotifyMode(mode NotifyMode) error {
	if mode == NotifyProgress && c.responseMode == Full {
		return qferrors.Config("set_notify_method", errProgressRequiresStreaming)
	}
	c.notifyMode = mode
	return nil
}

// SetCipher installs (or replaces) the encryption-at-rest dependency.
func (c *Coordinator) SetCipher(enc crypto.Encryptor) {
	c.encryptor = enc
}

// Entries returns the coordinator's bound entry list, for the
// materializer and watch loop to iterate without re-parsing config.
func (c *Coordinator) Entries() []entry.Entry {
	return c.entries
}

// SetEntries rebinds the coordinator's entry list, for the watch loop's
// config-reload path. Not safe to call concurrently with an in-flight
// Fetch.
func (c *Coordinator) SetEntries(entries []entry.Entry) {
	c.entries = entries
}

func (c *Coordinator) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name)
}

// recordDecision feeds one resolved (or failed) cache decision to the
// metrics and audit sinks, either of which may be absent.
func (c *Coordinator) recordDecision(ctx context.Context, decision string, e entry.Entry, start time.Time, bytes int64, err error) {
	if c.metrics != nil {
		c.metrics.RecordCacheDecision(ctx, decision, time.Since(start), bytes)
		if err != nil {
			c.metrics.RecordCacheDecisionError(ctx, decision, errorType(err))
		}
	}
	if c.audit != nil {
		k, url := e.Key().Display(), e.Value().URL()
		if decision == "hit" {
			c.audit.LogCacheRead(k, url, "", 0, err == nil, err, time.Since(start), nil)
		} else {
			c.audit.LogCacheWrite(k, url, decision, "", 0, err == nil, err, time.Since(start), nil)
		}
	}
}

func errorType(err error) string {
	switch {
	case qferrors.Is(err, qferrors.KindNetwork):
		return "network"
	case qferrors.Is(err, qferrors.KindStore):
		return "store"
	case qferrors.Is(err, qferrors.KindCrypto):
		return "crypto"
	default:
		return "unknown"
	}
}
