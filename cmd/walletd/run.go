package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"walletlink/internal/api"
	"walletlink/internal/config"
	"walletlink/internal/journal"
	"walletlink/internal/network"
	"walletlink/internal/observability/metrics"
	"walletlink/internal/relay"
	"walletlink/internal/storage/mysql"
	"walletlink/internal/wallet"
	"walletlink/internal/web3"
	"walletlink/internal/web3/provider"
	"walletlink/pkg/logger"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start the daemon",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if err := initLogger(cfg); err != nil {
			return err
		}
		defer logger.Sync()
		return run(c.Context, cfg)
	},
}

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
			Compress:   cfg.Log.Audit.Compress,
		},
	})
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("walletd")

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	mx := metrics.New()
	p := mx.InstrumentProvider(provider.Detect(ctx, cfg.Provider, logger.Named("provider")))
	defer provider.Release(p)

	store, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("关闭流水存储失败", slog.Any("error", err))
		}
	}()

	manager := newManager(ctx, cfg, p, registry, store)
	defer manager.Close()

	publishers, err := openPublishers(ctx, cfg)
	if err != nil {
		return err
	}
	fanout := relay.NewFanout(append(publishers, mx.SessionPublisher())...)
	defer func() {
		if err := fanout.Close(); err != nil {
			log.Warn("关闭转发失败", slog.Any("error", err))
		}
	}()

	server := api.NewServer(api.Config{
		Address: cfg.Server.Address,
		Token:   cfg.Server.Token,
		Logger:  logger.Named("api"),
		Metrics: mx,
	}, manager, store)

	log.Info("walletd starting",
		slog.Bool("provider_available", manager.Available()),
		slog.String("journal", cfg.Journal.Driver),
		slog.String("relay", cfg.Relay.Driver),
		slog.Int("networks", len(registry.Descriptors())),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Forward(gctx, manager, fanout, logger.Named("relay")) })
	g.Go(func() error { return server.Start(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("walletd stopped")
	return nil
}

func loadRegistry(cfg *config.Config) (*network.Registry, error) {
	if cfg.Networks.File == "" {
		return network.Default(), nil
	}
	return network.LoadFile(cfg.Networks.File)
}

func newManager(ctx context.Context, cfg *config.Config, p web3.Provider, registry *network.Registry, store journal.Store) *wallet.Manager {
	opts := []wallet.Option{
		wallet.WithRegistry(registry),
		wallet.WithJournal(store),
		wallet.WithLogger(logger.Named("wallet")),
	}
	if cfg.Provider.RequestTimeoutSeconds > 0 {
		opts = append(opts, wallet.WithRequestTimeout(time.Duration(cfg.Provider.RequestTimeoutSeconds)*time.Second))
	}
	return wallet.New(ctx, p, opts...)
}

func openJournal(ctx context.Context, cfg *config.Config) (journal.Store, error) {
	switch cfg.Journal.Driver {
	case "memory":
		return journal.NewMemoryStore(cfg.Journal.Capacity), nil
	case "mysql":
		return mysql.NewJournalStore(ctx, mysql.Config{
			DSN:             cfg.Journal.DSN,
			MaxOpenConns:    cfg.Journal.MaxOpenConns,
			MaxIdleConns:    cfg.Journal.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Journal.ConnMaxLifetimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的流水驱动: %s", cfg.Journal.Driver)
	}
}

func openPublishers(ctx context.Context, cfg *config.Config) ([]relay.Publisher, error) {
	switch cfg.Relay.Driver {
	case "none":
		return nil, nil
	case "redis":
		pub, err := relay.NewRedisPublisher(ctx, relay.RedisConfig{
			Address:  cfg.Relay.Redis.Address,
			Username: cfg.Relay.Redis.Username,
			Password: cfg.Relay.Redis.Password,
			DB:       cfg.Relay.Redis.DB,
			Prefix:   cfg.Relay.Redis.Prefix,
			TTL:      time.Duration(cfg.Relay.Redis.TTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return []relay.Publisher{pub}, nil
	case "rabbitmq":
		pub, err := relay.NewRabbitMQPublisher(relay.RabbitMQConfig{
			URL:   cfg.Relay.RabbitMQ.URL,
			Queue: cfg.Relay.RabbitMQ.Queue,
		})
		if err != nil {
			return nil, err
		}
		return []relay.Publisher{pub}, nil
	default:
		return nil, fmt.Errorf("未知的转发驱动: %s", cfg.Relay.Driver)
	}
}
