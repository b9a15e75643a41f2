package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/showcase/internal/auth"
	"github.com/MrSnakeDoc/showcase/internal/catalog"
	"github.com/MrSnakeDoc/showcase/internal/config"
	"github.com/MrSnakeDoc/showcase/internal/gallery"
	"github.com/MrSnakeDoc/showcase/internal/httpserver"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
	"github.com/MrSnakeDoc/showcase/internal/imaging"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/migrate"
	"github.com/MrSnakeDoc/showcase/internal/quota"
	"github.com/MrSnakeDoc/showcase/internal/redis"
	"github.com/MrSnakeDoc/showcase/internal/scheduler"
	"github.com/MrSnakeDoc/showcase/internal/seed"
	"github.com/MrSnakeDoc/showcase/internal/store"
	"github.com/MrSnakeDoc/showcase/internal/store/legacy"
	"github.com/MrSnakeDoc/showcase/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/showcase/internal/store/redis"
	"github.com/MrSnakeDoc/showcase/internal/utils"
	"github.com/MrSnakeDoc/showcase/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	legacy      *legacy.Store
	gallery     *gallery.Gallery
	loader      *scheduler.StartupLoader
	sampler     *scheduler.QuotaSampler
	sweeper     *scheduler.Sweeper
}

func New() (*App, error) {
	cfg := config.Load()

	loggerClient := logger.NewWithFile(cfg.LogLevel, cfg.PrettyLog, logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	a := &App{cfg: cfg, logger: loggerClient}

	// Initialize storage early - fail fast if Redis is unavailable
	kv, err := a.openStore(context.Background())
	if err != nil {
		return nil, err
	}

	var legacyStore migrate.LegacyStore
	if cfg.LegacyDB != "" {
		st, err := legacy.Open(context.Background(), cfg.LegacyDB)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("failed to open legacy store: %w", err)
		}
		loggerClient.Info("legacy store opened", logger.String("path", cfg.LegacyDB))
		a.legacy = st
		legacyStore = st
	}

	defaults, err := seed.Resolve(cfg.SeedFile)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("failed to load seed items: %w", err)
	}

	repo := catalog.NewRepository(kv, loggerClient).WithLegacy(legacyStore)
	a.gallery = gallery.New(gallery.Options{
		Repo:     repo,
		Images:   imaging.Normalizer{
			MaxBytes:     cfg.ImageMaxBytes,
			MaxDimension: cfg.ImageMaxDim,
			MaxPixels:    cfg.ImageMaxPixels,
		},
		Defaults: defaults,
		Repeater: gallery.NewRepeater(cfg.WriteRetries, cfg.WriteRetryDelay),
		Log:      loggerClient,
	})

	sequencer := migrate.NewSequencer(loggerClient, migrate.Steps(kv, repo, legacyStore, loggerClient)...)
	a.loader = scheduler.NewStartupLoader(sequencer, a.gallery, loggerClient)

	var prober quota.Prober
	if p, ok := kv.(store.UsageReporter); ok {
		prober = p
	}
	estimator := quota.NewEstimator(prober, cfg.QuotaWarnRatio, cfg.QuotaSampleTTL, loggerClient)
	a.sampler = scheduler.NewQuotaSampler(estimator, loggerClient, cfg.QuotaSampleTTL)
	a.sweeper = scheduler.NewSweeper(a.gallery, loggerClient, cfg.SweepSchedule)

	sessions, token, err := auth.New(auth.Options{
		Token:  cfg.AdminToken,
		Secret: cfg.SessionSecret,
		TTL:    cfg.SessionTTL,
		Secure: cfg.SecureCookie,
	})
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("failed to init admin sessions: %w", err)
	}
	if cfg.AdminToken == "" {
		loggerClient.Warn("SHOWCASE_ADMIN_TOKEN not set, generated one for this run",
			logger.String("admin_url_suffix", "?admin="+token))
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		Gallery:      a.gallery,
		Store:        kv,
		StoreBackend: cfg.StoreBackend,
		Quota:        estimator,
		Sessions:     sessions,
		UploadLimit:  cfg.UploadLimit,
		WriteLimit: deps.WriteLimit{
			Burst:        cfg.WriteBurst,
			RefillPerMin: cfg.WriteRefillRate,
		},
		HitImages: imaging.NewDecodedCache(10 * time.Minute),
	}

	a.server = httpserver.New(cfg, loggerClient, d)
	return a, nil
}

// openStore returns the durable KV selected by SHOWCASE_STORE_BACKEND.
func (a *App) openStore(ctx context.Context) (store.KV, error) {
	if a.cfg.StoreBackend == config.BackendMemory {
		a.logger.Warn("using in-memory storage, edits are lost on restart",
			logger.Int64("quota_bytes", a.cfg.MemoryQuota))
		return memory.New(a.cfg.MemoryQuota), nil
	}

	client, err := redis.Connect(ctx, redis.ConnectOptions{
		Addr:           a.cfg.RedisAddr,
		User:           a.cfg.RedisUser,
		Password:       a.cfg.RedisPassword,
		RedisDB:        a.cfg.RedisDB,
		DialTimeout:    a.cfg.RedisDT,
		ReadTimeout:    a.cfg.RedisRT,
		WriteTimeout:   a.cfg.RedisWT,
		PoolSize:       a.cfg.RedisPoolSize,
		ConnectTimeout: a.cfg.RedisConnectTimeout,
		RetryInterval:  a.cfg.RedisRetryInterval,
		MaxWait:        a.cfg.RedisMaxWait,
		PingTimeout:    a.cfg.RedisPingTimeout,
		WarnThreshold:  a.cfg.RedisWarnThreshold,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.redisClient = client
	a.logger.Info("Redis initialized successfully")
	return redisstore.NewKV(client), nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting showcase v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("showcase %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.closeStores()

	// Effects must run before the migration outcome is loaded: retiring an old
	// generation is queued right away.
	a.gallery.Start(ctx)

	if _, err := a.loader.Load(ctx); err != nil {
		return fmt.Errorf("failed to load showcase: %w", err)
	}

	if err := a.sampler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start quota sampler: %w", err)
	}
	a.logger.Info("quota sampler started", logger.Duration("interval", a.cfg.QuotaSampleTTL))

	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consistency sweeper: %w", err)
	}
	a.logger.Info("consistency sweeper started", logger.String("schedule", a.cfg.SweepSchedule))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.sweeper.Stop()
	a.sampler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Requests are done; write what they queued.
	if err := a.gallery.Stop(shutdownCtx); err != nil {
		a.logger.Warn("pending writes dropped at shutdown",
			logger.Int("pending", a.gallery.Status().Pending), logger.Error(err))
	}

	a.logger.Info("✅ showcase stopped cleanly")
	_ = a.logger.Sync()
	return nil
}

func (a *App) closeStores() {
	if a.legacy != nil {
		utils.CloseLogged(a.legacy, "legacy store", a.logger)
		a.legacy = nil
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
		a.redisClient = nil
	}
}
