package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edugame-service/internal/app"
	"edugame-service/internal/config"
	"edugame-service/internal/infra/memory"
	"edugame-service/internal/infra/postgres"
	infraredis "edugame-service/internal/infra/redis"
	"edugame-service/internal/logger"
	"edugame-service/internal/metrics"
	transport "edugame-service/internal/transport/http"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the API and chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores is the persistence chosen at startup.
type stores struct {
	sources  []app.ResultSource
	students app.StudentStore
	admins   app.AdminStore
	messages app.MessageStore
	close    func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth secret not configured (auth.secret or AUTH_SECRET)")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var bus app.ChatBus
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		bus = infraredis.NewChatBus(redisClient, cfg.Redis.ChatChannel, log)
	}

	m := metrics.New()
	hub := app.NewHub(st.messages, bus, log.Named("chat"), m, app.HubConfig{
		ClientBuffer: cfg.Chat.ClientBuffer,
		MaxLength:    cfg.Chat.MaxLength,
		HistoryLimit: cfg.Chat.HistoryLimit,
	})
	if err := hub.Start(ctx); err != nil {
		return err
	}

	agg := app.NewAggregator(cfg.Leaderboard.Size, st.sources...)
	auth := app.NewAuthService(st.students, st.admins, validator.New(), log.Named("auth"), app.AuthConfig{
		Secret:   cfg.Auth.Secret,
		TokenTTL: config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour),
		Issuer:   cfg.Auth.Issuer,
		Location: loc,
	})

	api := transport.NewServer(transport.Deps{
		Auth:     auth,
		Results:  app.NewResultService(st.sources...),
		Agg:      agg,
		Students: app.NewStudentService(st.students, agg),
		Hub:      hub,
		Logger:   log,
		Metrics:  m,

		AllowedOrigins: cfg.Server.CORSOrigins,
	})

	// Websocket connections manage their own write deadlines, so WriteTimeout defaults to none.
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Router(),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 0),
	}

	go func() {
		log.Info("starting edugame service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// openStores picks Postgres when configured and falls back to in-memory stores otherwise.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	if cfg.Postgres.URL == "" {
		log.Warn("postgres not configured, using in-memory stores")
		var sources []app.ResultSource
		for _, src := range memory.NewResultSources() {
			sources = append(sources, src)
		}
		return stores{
			sources:  sources,
			students: memory.NewStudentStore(),
			admins:   memory.NewAdminStore(),
			messages: memory.NewMessageStore(),
			close:    func() {},
		}, nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return stores{}, err
	}
	if err := migrateDB(ctx, db, log); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		_ = db.Close()
		return stores{}, fmt.Errorf("connect pgx pool: %w", err)
	}

	var sources []app.ResultSource
	for _, src := range postgres.NewResultSources(db) {
		sources = append(sources, src)
	}
	return stores{
		sources:  sources,
		students: postgres.NewStudentStore(db),
		admins:   postgres.NewAdminStore(db),
		messages: postgres.NewMessageStore(pool),
		close: func() {
			pool.Close()
			_ = db.Close()
		},
	}, nil
}
