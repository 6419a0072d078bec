// Package app builds the long-lived services behind the proxy from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/puzzle-proxy/internal/api"
	"github.com/JakeFAU/puzzle-proxy/internal/config"
	"github.com/JakeFAU/puzzle-proxy/internal/extract"
	collyfetcher "github.com/JakeFAU/puzzle-proxy/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/puzzle-proxy/internal/fetcher/headless"
	"github.com/JakeFAU/puzzle-proxy/internal/headless/detector"
	memorypublisher "github.com/JakeFAU/puzzle-proxy/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/puzzle-proxy/internal/publisher/pubsub"
	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
	gcsstorage "github.com/JakeFAU/puzzle-proxy/internal/storage/gcs"
	localstorage "github.com/JakeFAU/puzzle-proxy/internal/storage/local"
	memorystorage "github.com/JakeFAU/puzzle-proxy/internal/storage/memory"
	"github.com/JakeFAU/puzzle-proxy/internal/storage/postgres"
)

// App holds the resolver, the HTTP server and everything they own.
type App struct {
	Resolver *resolver.Resolver
	Server   *api.Server

	logger  *zap.Logger
	closers []func() error
}

// New wires every configured component. It fails fast when an enabled
// backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}

	candidates, err := cfg.Candidates()
	if err != nil {
		return nil, err
	}

	resolverCfg := resolver.Config{
		Timeout:        cfg.Timeout(),
		SnapshotPrefix: cfg.Snapshots.Prefix,
		Topic:          cfg.Events.Topic,
	}
	var opts []resolver.Option

	headless, detect, err := a.headless(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts = append(opts, resolver.WithHeadless(headless, detect))

	snapshots, err := a.snapshots(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if snapshots != nil {
		opts = append(opts, resolver.WithSnapshots(snapshots))
	}

	publisher, err := a.publisher(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if publisher != nil {
		opts = append(opts, resolver.WithPublisher(publisher))
	}

	var readiness []api.ReadinessCheck
	if cfg.Ledger.DSN != "" {
		store, err := postgres.NewAttemptStore(ctx, postgres.AttemptStoreConfig{
			DSN:             cfg.Ledger.DSN,
			Table:           cfg.Ledger.Table,
			MaxConns:        int32(cfg.Ledger.MaxConns),
			MaxConnLifetime: 30 * time.Minute,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init attempt ledger: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		opts = append(opts, resolver.WithRecorder(store))
		readiness = append(readiness, store.Ping)
		logger.Info("attempt ledger enabled", zap.String("table", cfg.Ledger.Table))
	}

	res, err := resolver.New(
		candidates,
		collyfetcher.New(collyfetcher.Config{Timeout: cfg.Timeout()}),
		extract.New(),
		resolverCfg,
		logger.Named("resolver"),
		opts...,
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init resolver: %w", err)
	}
	a.Resolver = res
	a.Server = api.NewServer(res, logger.Named("api"), api.Options{
		FailurePolicy: cfg.Proxy.FailurePolicy,
		Readiness:     readiness,
	})
	return a, nil
}

// headless returns the rendering fetcher and promotion detector. When
// headless is disabled, rendered candidates fail fast and nothing is promoted.
func (a *App) headless(cfg config.Config) (resolver.Fetcher, resolver.HeadlessDetector, error) {
	if !cfg.Headless.Enabled {
		return headlessfetcher.NewNoop(), nil, nil
	}
	f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		NavigationTimeout: cfg.NavTimeout(),
		ReadyExpression:   cfg.Headless.ReadyExpression,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	a.closers = append(a.closers, func() error { f.Close(); return nil })
	a.logger.Info("headless fetcher enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	return f, detector.NewHeuristic(cfg.Headless.PromotionThresh), nil
}

func (a *App) snapshots(ctx context.Context, cfg config.Config) (resolver.BlobStore, error) {
	switch cfg.Snapshots.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return memorystorage.NewBlobStore(), nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Snapshots.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local snapshots: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Snapshots.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init gcs snapshots: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("gcs snapshots enabled", zap.String("bucket", cfg.Snapshots.GCSBucket))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshots.backend %q", cfg.Snapshots.Backend)
	}
}

func (a *App) publisher(ctx context.Context, cfg config.Config) (resolver.Publisher, error) {
	switch cfg.Events.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return memorypublisher.New(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		a.closers = append(a.closers, pub.Close)
		a.logger.Info("pubsub events enabled", zap.String("topic", cfg.Events.Topic))
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events.backend %q", cfg.Events.Backend)
	}
}

// Close releases every owned resource in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close app resources", zap.Error(err))
	}
}
