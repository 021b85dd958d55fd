// Command quickfetch is the reference front-end over the coordinator:
// load a config file, run one fetch pass (or watch the config file for
// changes), optionally materialize the cache to a directory, and
// optionally serve /healthz, /readyz, and /metrics while it runs.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Moka-Reads/QuickFetch/internal/audit"
	"github.com/Moka-Reads/QuickFetch/internal/config"
	"github.com/Moka-Reads/QuickFetch/internal/coordinator"
	"github.com/Moka-Reads/QuickFetch/internal/crypto"
	"github.com/Moka-Reads/QuickFetch/internal/lock"
	"github.com/Moka-Reads/QuickFetch/internal/logging"
	"github.com/Moka-Reads/QuickFetch/internal/metrics"
	"github.com/Moka-Reads/QuickFetch/internal/progress"
	"github.com/Moka-Reads/QuickFetch/internal/s3"
	"github.com/Moka-Reads/QuickFetch/internal/server"
	"github.com/Moka-Reads/QuickFetch/internal/tracing"
	"github.com/Moka-Reads/QuickFetch/internal/transport"
	"github.com/Moka-Reads/QuickFetch/internal/watch"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		configPath   = flag.String("config", "quickfetch.json", "Path to the package config file (JSON or TOML)")
		cacheDir     = flag.String("cache-dir", ".quickfetch-cache", "Path to the embedded KV cache directory")
		outDir       = flag.String("out", "", "Materialize cached payloads to this directory after fetching (disabled if empty)")
		dispatchFlag = flag.String("dispatch", "pertask", "Concurrency dispatch mode: pertask or pipelined")
		responseFlag = flag.String("response", "full", "Response acquisition mode: full, chunked, or streamed")
		notifyFlag   = flag.String("notify", "log", "Notify mode: log, progress, or silent")
		watchFlag    = flag.Bool("watch", false, "Watch the config file and re-fetch on change instead of running once")

		includeGlob = flag.String("include", "", "Comma-separated glob patterns; only matching package names are fetched")
		excludeGlob = flag.String("exclude", "", "Comma-separated glob patterns; matching package names are skipped")

		cipherKind = flag.String("cipher", "", "Encrypt cache records at rest: aes-256-gcm or chacha20-poly1305 (disabled if empty)")
		masterKey  = flag.String("master-key-hex", "", "32-byte hex-encoded master key for cache encryption (required with -cipher unless -kmip-endpoint is set)")

		kmipEndpoint = flag.String("kmip-endpoint", "", "Cosmian KMIP server address; wraps per-entry keys through the KMS instead of deriving them from -master-key-hex")
		kmipKeyID    = flag.String("kmip-key-id", "", "KMIP unique identifier of the wrapping key (required with -kmip-endpoint)")

		lockRedisAddr = flag.String("lock-redis-addr", "", "Redis address for the advisory cross-host cache lock (disabled if empty; bbolt's own file lock already covers single-host use)")

		auditSink = flag.String("audit-sink", "", "Audit-trail sink: \"stdout\" or a file path (disabled if empty)")

		s3Provider  = flag.String("s3-provider", "", "S3-compatible provider name for s3:// URLs (aws, minio, wasabi, ...); required if any entry uses an s3:// URL")
		s3Region    = flag.String("s3-region", "us-east-1", "S3 region")
		s3Endpoint  = flag.String("s3-endpoint", "", "S3 endpoint override")
		s3AccessKey = flag.String("s3-access-key", "", "S3 access key")
		s3SecretKey = flag.String("s3-secret-key", "", "S3 secret key")

		listenAddr = flag.String("listen", "", "Serve /healthz, /readyz, /livez, /metrics on this address (disabled if empty)")

		tracingExporter = flag.String("trace-exporter", "", "Tracing exporter: stdout, otlp-grpc, jaeger (disabled if empty)")
		tracingEndpoint = flag.String("trace-endpoint", "", "Tracing collector endpoint (ignored for stdout)")
	)
	flag.Parse()

	logger := logging.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := server.ConfigureTracing(ctx, tracing.Config{
		ServiceName: "quickfetch",
		Exporter:    tracing.Exporter(*tracingExporter),
		Endpoint:    *tracingEndpoint,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to configure tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	filter := config.Filter{
		Include: splitNonEmpty(*includeGlob),
		Exclude: splitNonEmpty(*excludeGlob),
	}

	doc, err := config.Load(*configPath, filter)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}

	dispatcher, err := buildDispatcher(*s3Provider, *s3Region, *s3Endpoint, *s3AccessKey, *s3SecretKey)
	if err != nil {
		logger.WithError(err).Fatal("failed to build transport dispatcher")
	}

	m := metrics.NewMetrics()
	m.SetHardwareAccelerationStatus("aes", crypto.HasAESHardwareSupport())

	encryptor, kmsHealth, err := buildEncryptor(*cipherKind, *masterKey, *kmipEndpoint, *kmipKeyID, m)
	if err != nil {
		logger.WithError(err).Fatal("failed to configure encryption")
	}

	locker, err := buildLocker(*lockRedisAddr)
	if err != nil {
		logger.WithError(err).Fatal("failed to configure advisory lock")
	}

	auditLogger, err := buildAudit(*auditSink)
	if err != nil {
		logger.WithError(err).Fatal("failed to configure audit trail")
	}
	if auditLogger != nil {
		defer auditLogger.Close()
	}

	bars := progress.NewMultiBar(os.Stderr)

	coord, err := coordinator.New(doc.Entries(), *cacheDir, coordinator.Options{
		Encryptor:  encryptor,
		Locker:     locker,
		Metrics:    m,
		Logger:     logger,
		Dispatcher: dispatcher,
		Reporter:   progress.NewTransportReporter(bars),
		Audit:      auditLogger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to open coordinator")
	}
	defer coord.Close()

	responseMode, err := parseResponseMode(*responseFlag)
	if err != nil {
		logger.WithError(err).Fatal("invalid -response")
	}
	coord.SetResponseMode(responseMode)

	notifyMode, err := parseNotifyMode(*notifyFlag)
	if err != nil {
		logger.WithError(err).Fatal("invalid -notify")
	}
	if err := coord.SetNotifyMode(notifyMode); err != nil {
		logger.WithError(err).Fatal("invalid -notify/-response combination")
	}

	dispatch, err := parseDispatchMode(*dispatchFlag)
	if err != nil {
		logger.WithError(err).Fatal("invalid -dispatch")
	}

	if *listenAddr != "" {
		m.StartSystemMetricsCollector()
		srv := &http.Server{Addr: *listenAddr, Handler: server.New(server.Options{
			Metrics:               m,
			Logger:                logger,
			KeyManagerHealthCheck: kmsHealth,
		})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("operational server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if *watchFlag {
		load := func(path string) error {
			reloaded, err := config.Load(path, filter)
			if err != nil {
				return err
			}
			coord.SetEntries(reloaded.Entries())
			return nil
		}
		if err := watch.Loop(ctx, *configPath, coordinatorCache{coord}, load, logger); err != nil && ctx.Err() == nil {
			logger.WithError(err).Fatal("watch loop stopped")
		}
		return
	}

	if err := coord.Fetch(ctx, dispatch); err != nil {
		logger.WithError(err).Fatal("fetch pass failed")
	}

	if *outDir != "" {
		if err := coord.WriteAll(ctx, *outDir); err != nil {
			logger.WithError(err).Fatal("materialize failed")
		}
	}
}

// coordinatorCache adapts *coordinator.Coordinator to watch.Cache: the
// watch loop always runs PerTask with Log notification, regardless of
// how the CLI's own one-shot pass was configured.
type coordinatorCache struct {
	coord *coordinator.Coordinator
}

func (c coordinatorCache) Fetch(ctx context.Context) error {
	if err := c.coord.SetNotifyMode(coordinator.NotifyLog); err != nil {
		return err
	}
	return c.coord.Fetch(ctx, coordinator.PerTask)
}

func (c coordinatorCache) Clear() error {
	return c.coord.Clear()
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseResponseMode(s string) (coordinator.ResponseMode, error) {
	switch s {
	case "full":
		return coordinator.Full, nil
	case "chunked":
		return coordinator.Chunked, nil
	case "streamed":
		return coordinator.Streamed, nil
	default:
		return 0, fmt.Errorf("unknown response mode %q", s)
	}
}

func parseNotifyMode(s string) (coordinator.NotifyMode, error) {
	switch s {
	case "log":
		return coordinator.NotifyLog, nil
	case "progress":
		return coordinator.NotifyProgress, nil
	case "silent":
		return coordinator.NotifySilent, nil
	default:
		return 0, fmt.Errorf("unknown notify mode %q", s)
	}
}

func parseDispatchMode(s string) (coordinator.DispatchMode, error) {
	switch s {
	case "pertask":
		return coordinator.PerTask, nil
	case "pipelined":
		return coordinator.Pipelined, nil
	default:
		return 0, fmt.Errorf("unknown dispatch mode %q", s)
	}
}

func buildDispatcher(provider, region, endpoint, accessKey, secretKey string) (*transport.Dispatcher, error) {
	httpGetter := transport.NewHTTPGetter(nil)

	var s3Getter transport.Getter
	if provider != "" {
		client, err := s3.NewClient(&s3.BackendConfig{
			Provider:  provider,
			Region:    region,
			Endpoint:  endpoint,
			AccessKey: accessKey,
			SecretKey: secretKey,
		})
		if err != nil {
			return nil, err
		}
		s3Getter = transport.NewS3Getter(client)
	}

	return transport.NewDispatcher(httpGetter, s3Getter), nil
}

// buildEncryptor configures encryption-at-rest from the CLI flags. The
// KMIP path wraps per-entry keys through the KMS and reports
// rotated-key decrypts on the metrics surface; the local path derives
// them from the master key. The returned health check (KMIP only) feeds
// the operational server's /readyz.
func buildEncryptor(cipherKind, masterKeyHex, kmipEndpoint, kmipKeyID string, m *metrics.Metrics) (crypto.Encryptor, func(context.Context) error, error) {
	if cipherKind == "" {
		return nil, nil, nil
	}

	if kmipEndpoint != "" {
		if kmipKeyID == "" {
			return nil, nil, fmt.Errorf("-kmip-key-id is required when -kmip-endpoint is set")
		}
		if masterKeyHex != "" {
			return nil, nil, fmt.Errorf("-master-key-hex and -kmip-endpoint are mutually exclusive")
		}
		manager, err := crypto.NewCosmianKMIPManager(crypto.CosmianKMIPOptions{
			Endpoint: kmipEndpoint,
			Keys:     []crypto.KMIPKeyReference{{ID: kmipKeyID, Version: 1}},
			Provider: "cosmian-kmip",
		})
		if err != nil {
			return nil, nil, err
		}
		enc := crypto.NewKMIPEncryptor(manager, crypto.CipherKind(cipherKind), 32)
		enc.SetRotationObserver(m)
		return enc, manager.HealthCheck, nil
	}

	if masterKeyHex == "" {
		return nil, nil, fmt.Errorf("-master-key-hex is required when -cipher is set")
	}
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("-master-key-hex is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, nil, fmt.Errorf("-master-key-hex must decode to 32 bytes, got %d", len(key))
	}
	manager, err := crypto.NewLocalKeyManager(key)
	if err != nil {
		return nil, nil, err
	}
	return crypto.NewLocalEncryptor(manager, crypto.CipherKind(cipherKind)), nil, nil
}

func buildAudit(sink string) (audit.Logger, error) {
	if sink == "" {
		return nil, nil
	}
	cfg := audit.AuditConfig{Enabled: true, MaxEvents: 1024}
	if sink == "stdout" {
		cfg.Sink = audit.SinkConfig{Type: "stdout"}
	} else {
		cfg.Sink = audit.SinkConfig{Type: "file", FilePath: sink}
	}
	return audit.NewLoggerFromConfig(cfg)
}

func buildLocker(redisAddr string) (lock.Locker, error) {
	if redisAddr == "" {
		return lock.NoopLocker{}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return lock.NewRedisLocker(client, 30*time.Second, 100*time.Millisecond), nil
}
