package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dmchat/internal/chat"
	"dmchat/internal/config"
	"dmchat/internal/db"
	"dmchat/internal/hub"
	myMiddleware "dmchat/internal/middleware"
	"dmchat/internal/online"
	"dmchat/internal/user"
)

func newRootCommand() *cobra.Command {
	var (
		addr   string
		memory bool
	)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if memory {
				cfg.MemoryStore = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, config.NewLogger(cfg.LogLevel))
		},
	}
	serve.Flags().StringVar(&addr, "addr", ":8080", "http service address")
	serve.Flags().BoolVar(&memory, "memory", false, "keep users, rooms and messages in memory")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DSN == "" {
				return errors.New("DB_DSN is not set")
			}
			log := config.NewLogger(cfg.LogLevel)

			database, err := db.NewDatabase(cmd.Context(), cfg.DSN)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.AutoMigrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("database schema initialized")
			return nil
		},
	}

	root := &cobra.Command{
		Use:           "dmchat",
		Short:         "Real-time direct messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  dmchat serve --memory
  dmchat serve --addr :9000
  dmchat migrate`,
	}
	root.AddCommand(serve, migrate)

	// Bare `dmchat` runs the server.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dmchat:", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. Persistence
	var (
		store     chat.Store
		credsRepo user.CredentialsRepository
	)
	if cfg.MemoryStore {
		store = chat.NewMemoryStore()
		credsRepo = user.NewMemoryRepository()
		log.Warn("using in-memory store, nothing survives a restart")
	} else {
		database, err := db.NewDatabase(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()
		log.Info("connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			return err
		}
		store = chat.NewRepository(database.Conn)
		credsRepo = user.NewRepository(database.Conn)
	}

	// 2. Online users view
	var tracker online.Tracker = online.NewMemoryTracker()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		rt := online.NewRedisTracker(redisClient, online.DefaultKey)
		// Counts from a previous run belong to connections that no longer exist.
		if err := rt.Reset(ctx); err != nil {
			return fmt.Errorf("reset online users: %w", err)
		}
		tracker = rt
		log.Info("connected to Redis", "addr", cfg.RedisAddr)
	}

	// 3. Credentials and identity
	userService := user.NewService(credsRepo, cfg.JWTSecret, cfg.TokenTTL)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	var resolver chat.IdentityResolver = chat.TrustResolver{}
	if cfg.AuthMode == config.AuthJWT {
		resolver = chat.NewTokenResolver(userService)
	}
	log.Info("login identity", "mode", cfg.AuthMode)

	// 4. Chat core
	broadcaster := hub.New(log.With("component", "hub"))
	presence := chat.NewPresence(broadcaster, store, tracker, log.With("component", "presence"))
	dispatcher := chat.NewDispatcher(broadcaster, presence, store, resolver, log.With("component", "dispatcher"))

	// Actions outlive the signal long enough for the HTTP server to drain.
	appCtx, cancelApp := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelApp()

	chatHandler := chat.NewHandler(appCtx, broadcaster, dispatcher, presence, tracker, chat.HandlerOptions{
		MaxMessageSize: cfg.MaxMessageSize,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log.With("component", "ws"))

	// 5. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", chatHandler.Health)
	r.Get("/chat", chatHandler.ServeWs)
	r.Get("/ws", chatHandler.ServeWs)
	r.Post("/api/register", userHandler.Register)
	r.Post("/api/token", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/online", chatHandler.GetOnline)
		r.Get("/api/rooms/{roomID}/messages", chatHandler.GetRoomMessages)
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not tracked by the server.
		broadcaster.Shutdown()
		cancelApp()
		return err
	})

	return g.Wait()
}
