package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iamasit07/forum-chat/backend/internal/config"
	"github.com/iamasit07/forum-chat/backend/internal/logger"
	"github.com/iamasit07/forum-chat/backend/internal/repository/memory"
	"github.com/iamasit07/forum-chat/backend/internal/repository/postgres"
	redisrepo "github.com/iamasit07/forum-chat/backend/internal/repository/redis"
	"github.com/iamasit07/forum-chat/backend/internal/service/account"
	"github.com/iamasit07/forum-chat/backend/internal/service/chat"
	"github.com/iamasit07/forum-chat/backend/internal/service/cleanup"
	"github.com/iamasit07/forum-chat/backend/internal/service/presence"
	"github.com/iamasit07/forum-chat/backend/internal/service/session"
	transportHttp "github.com/iamasit07/forum-chat/backend/internal/transport/http"
	"github.com/iamasit07/forum-chat/backend/internal/transport/websocket"
	"github.com/iamasit07/forum-chat/backend/pkg/auth"
	"github.com/iamasit07/forum-chat/backend/pkg/httputil"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type repositories struct {
	users    account.UserRepository
	sessions session.SessionRepository
	posts    transportHttp.PostRepository
	close    func()
}

func main() {
	envErr := godotenv.Load()
	if envErr != nil {
		envErr = godotenv.Load("../.env")
	}

	cfg := config.LoadConfig()
	log := logger.New(cfg.LogLevel, cfg.Environment)
	if envErr != nil {
		log.Debug().Msg("no .env file found")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 1. Persistence
	repos, err := openRepositories(ctx, cfg, logger.Component(log, "postgres"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open repositories")
	}
	defer repos.close()

	// 2. Optional Redis for the session cache and the presence mirror
	var storeOpts []session.Option
	var mirror presence.Mirror
	if cfg.RedisEnabled {
		redisLog := logger.Component(log, "redis")
		client, err := redisrepo.InitRedis(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			redisLog.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		} else {
			defer client.Close()
			storeOpts = append(storeOpts, session.WithCache(redisrepo.NewRedisCache(client)))
			mirror = redisrepo.NewPresenceMirror(client)
			redisLog.Info().Str("addr", cfg.RedisURL).Msg("redis connected")
		}
	}

	// 3. Core services
	sessions := session.NewStore(repos.sessions, auth.NewTokenSigner(cfg.JWTSecret), cfg.SessionTTL, logger.Component(log, "session"), storeOpts...)
	tracker := presence.NewTracker(logger.Component(log, "presence"))
	if mirror != nil {
		tracker.StartMirror(ctx, mirror)
	}

	hub := websocket.NewHub(sessions, tracker, cfg.Chat, logger.Component(log, "hub"))
	events, unsubscribe := tracker.Subscribe()
	defer unsubscribe()
	go hub.RunPresence(ctx, events)

	router := chat.NewRouter(sessions, repos.users, hub, cfg.Chat.MaxMessageLength, logger.Component(log, "router"))
	accounts := account.NewService(repos.users, sessions, hub, cfg.SingleSession, logger.Component(log, "account"))

	// 4. Background workers
	cleanup.NewWorker(sessions, cfg.CleanupInterval, logger.Component(log, "cleanup")).Start(ctx)

	// 5. HTTP boundary
	httpLog := logger.Component(log, "http")
	cookie := httputil.CookieOptions{MaxAge: cfg.SessionTTL, Production: cfg.IsProduction()}
	wsHandler := websocket.NewHandler(hub, router, cfg.AllowedOrigins, logger.Component(log, "hub"))

	engine := transportHttp.NewRouter(transportHttp.RouterConfig{
		Auth:           transportHttp.NewAuthHandler(accounts, cookie, httpLog),
		Presence:       transportHttp.NewPresenceHandler(tracker),
		Posts:          transportHttp.NewPostHandler(repos.posts, httpLog),
		Chat:           wsHandler.HandleWebSocket,
		Sessions:       sessions,
		AllowedOrigins: cfg.AllowedOrigins,
		StaticDir:      cfg.StaticDir,
		Log:            httpLog,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("chat connections did not close in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	stop()

	log.Info().Msg("server exited gracefully")
}

func openRepositories(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		return &repositories{
			users:    memory.NewUserRepo(),
			sessions: memory.NewSessionRepo(),
			posts:    memory.NewPostRepo(),
			close:    func() {},
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:       cfg.DBMaxOpenConns,
		MaxIdleConns:       cfg.DBMaxIdleConns,
		ConnMaxLifetimeMin: cfg.DBConnMaxLifetimeMin,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Msg("running database migrations")
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &repositories{
		users:    postgres.NewUserRepo(db),
		sessions: postgres.NewSessionRepo(db),
		posts:    postgres.NewPostRepo(db),
		close:    func() { _ = db.Close() },
	}, nil
}
