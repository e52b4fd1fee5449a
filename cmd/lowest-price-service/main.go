// Package main boots the lowest-price lookup service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fairyhunter13/lowest-price-service/internal/cache"
	"github.com/fairyhunter13/lowest-price-service/internal/config"
	httpapi "github.com/fairyhunter13/lowest-price-service/internal/http"
	"github.com/fairyhunter13/lowest-price-service/internal/mirror"
	"github.com/fairyhunter13/lowest-price-service/internal/obs"
	"github.com/fairyhunter13/lowest-price-service/internal/pricing"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		obs.Logger.Fatal("config_load_failed", zap.Error(err))
	}
	obs.InitLogger(cfg.LogLevel)
	defer func() { _ = obs.Logger.Sync() }()
	obs.Logger.Info("service_starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, regions, err := buildTopology(cfg)
	if err != nil {
		obs.Logger.Fatal("topology_init_failed", zap.Error(err))
	}

	feed := mirror.NewFeed(regions...)
	feed.Start(ctx)

	// The local region's cache doubles as the write path's invalidation
	// target; the remaining regions are invalidated through the feed.
	serving := regions[0]
	coord := pricing.NewCoordinator(engine, serving.Cache, feed)
	reader := pricing.NewReader(serving.Cache, serving.Replica, cfg.ReadBudget)

	app := httpapi.NewApp(cfg, coord, reader, feed, engine, serving.Cache)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", zap.Error(err))
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", zap.String("signal", s.String()))

	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", zap.Int("backlog_size", feed.BacklogSize()))

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := feed.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", zap.Error(err))
	}
	obs.Logger.Info("service_stopped")
}

// buildTopology selects the storage engine and builds the regional mirrors.
//
// With MySQL DSNs configured, replication between master and replica belongs
// to the database; the feed only carries cache invalidations. Without DSNs
// the in-memory engine runs, and each region gets its own replica that the
// feed keeps current.
func buildTopology(cfg config.Config) (storage.Engine, []*mirror.Region, error) {
	if cfg.MasterDSN != "" {
		eng, err := storage.OpenMySQL(cfg.MasterDSN, cfg.ReplicaDSN)
		if err != nil {
			return nil, nil, err
		}
		c, err := buildCache(cfg)
		if err != nil {
			return nil, nil, err
		}
		region := &mirror.Region{
			Name:    cfg.Regions[0],
			Replica: eng.Replica(),
			Cache:   c,
		}
		obs.Logger.Info("storage_backend", zap.String("engine", "mysql"))
		return eng, []*mirror.Region{region}, nil
	}

	eng := storage.NewMemoryEngine()
	regions := make([]*mirror.Region, 0, len(cfg.Regions))
	for _, name := range cfg.Regions {
		regions = append(regions, mirror.NewMemoryRegion(name, cfg.CacheTTL))
	}
	if cfg.RedisAddr != "" {
		c, err := buildCache(cfg)
		if err != nil {
			return nil, nil, err
		}
		regions[0].Cache = c
	}
	obs.Logger.Info("storage_backend",
		zap.String("engine", "memory"),
		zap.Int("regions", len(regions)),
	)
	return eng, regions, nil
}

func buildCache(cfg config.Config) (cache.Cache, error) {
	if cfg.RedisAddr != "" {
		return cache.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	}
	return cache.NewMemory(cfg.CacheTTL), nil
}
