package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/announcements"
	"github.com/lalith-99/portalchat/internal/api"
	"github.com/lalith-99/portalchat/internal/chat"
	"github.com/lalith-99/portalchat/internal/config"
	"github.com/lalith-99/portalchat/internal/db"
	"github.com/lalith-99/portalchat/internal/membership"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/observ"
	"github.com/lalith-99/portalchat/internal/presence"
	"github.com/lalith-99/portalchat/internal/repository"
	"github.com/lalith-99/portalchat/internal/repository/memory"
	"github.com/lalith-99/portalchat/internal/repository/postgres"
	"github.com/lalith-99/portalchat/internal/retention"
	"github.com/lalith-99/portalchat/internal/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type stores struct {
	messages      repository.MessageRepository
	tombstones    repository.TombstoneRepository
	notifications repository.NotificationRepository
	directory     repository.DirectoryRepository
	announcements repository.AnnouncementRepository
	health        func(ctx context.Context) error
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, closeRegistry, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	resolver := membership.NewResolver(st.directory, cfg.MembershipCacheTTL, logger)
	chatSvc := chat.NewService(chat.Deps{
		Messages:      st.messages,
		Tombstones:    st.tombstones,
		Notifications: st.notifications,
		Directory:     st.directory,
		Membership:    resolver,
		Registry:      registry,
		Logger:        logger,
	})
	annSvc := announcements.NewService(announcements.Deps{
		Announcements: st.announcements,
		Notifications: st.notifications,
		Directory:     st.directory,
		Registry:      registry,
		Logger:        logger,
	})

	purger, err := retention.NewPurger(retention.Config{
		Cron:         cfg.RetentionCron,
		TombstoneTTL: cfg.TombstoneTTL,
		RedactedTTL:  cfg.RedactedTTL,
	}, st.messages, st.tombstones, logger)
	if err != nil {
		return fmt.Errorf("create retention purger: %w", err)
	}
	go purger.Run(ctx)
	if cfg.AnnouncementPoll > 0 {
		go annSvc.Run(ctx, cfg.AnnouncementPoll)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	socket := ws.NewHandler(chatSvc, ws.Options{
		SendBuffer: cfg.WSSendBuffer,
		RateLimit:  cfg.WSRateLimit,
		RateBurst:  cfg.WSRateBurst,
	}, logger)
	api.Register(router, api.Handlers{
		Messages:      api.NewMessageHandler(chatSvc, logger),
		Channels:      api.NewChannelHandler(resolver, logger),
		Users:         api.NewUserHandler(chatSvc, logger),
		Announcements: api.NewAnnouncementHandler(annSvc, logger),
		Socket:        socket.Serve,
		Health:        st.health,
	}, cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting portalchat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreBackend),
			zap.String("presence", cfg.PresenceBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// Shutdown does not wait for hijacked sockets; they close with the process.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stores, func(), error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		var employees []models.Employee
		if cfg.DirectorySeed != "" {
			var err error
			if employees, err = memory.LoadEmployees(cfg.DirectorySeed); err != nil {
				return stores{}, nil, err
			}
		} else {
			logger.Warn("DIRECTORY_SEED not set; the directory is empty and every channel has no members")
		}
		logger.Warn("using in-memory store; data is lost on restart", zap.Int("employees", len(employees)))
		m := memory.New(employees...)
		return stores{
			messages:      m.Messages,
			tombstones:    m.Tombstones,
			notifications: m.Notifications,
			directory:     m.Directory,
			announcements: m.Announcements,
		}, func() {}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		return stores{}, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return stores{}, nil, fmt.Errorf("migrate database: %w", err)
	}

	pool := database.Pool()
	return stores{
		messages:      postgres.NewMessageStore(pool),
		tombstones:    postgres.NewTombstoneStore(pool),
		notifications: postgres.NewNotificationStore(pool),
		directory:     postgres.NewDirectoryStore(pool),
		announcements: postgres.NewAnnouncementStore(pool),
		health:        database.Health,
	}, database.Close, nil
}

func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (presence.Registry, func(), error) {
	if cfg.PresenceBackend == config.PresenceBackendLocal {
		return presence.NewLocal(logger), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	reg := presence.NewRedis(client, logger)
	if err := reg.Start(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("start redis presence: %w", err)
	}
	logger.Info("redis presence started", zap.String("addr", opts.Addr))
	return reg, func() { client.Close() }, nil
}
