package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hive-corporation/threatpulse/internal/adapter/campaign"
	"github.com/hive-corporation/threatpulse/internal/adapter/handler"
	"github.com/hive-corporation/threatpulse/internal/adapter/notifier"
	"github.com/hive-corporation/threatpulse/internal/adapter/provider"
	"github.com/hive-corporation/threatpulse/internal/adapter/repository"
	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/config"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/core/service"
	"github.com/hive-corporation/threatpulse/internal/metrics"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := log.Init(cfg.Logger.Zap())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.InitMetrics()
	logger.Info(ctx, "Prometheus metrics initialized")

	// Persistence
	var alertRepo ports.AlertRepository
	var escalationRepo ports.EscalationRepository
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatalf(ctx, "Failed to connect to database: %v", err)
		}
		defer dbPool.Close()

		repo := repository.NewPostgresRepository(dbPool)
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatalf(ctx, "Failed to migrate database: %v", err)
		}
		alertRepo, escalationRepo = repo, repo
		logger.Info(ctx, "Postgres persistence enabled")
	} else {
		repo := repository.NewMemoryRepository()
		alertRepo, escalationRepo = repo, repo
		logger.Warn(ctx, "DATABASE_URL not set - alerts and escalations are kept in memory only")
	}

	// Notification channels
	hub := handler.NewHub(cfg.Server.AllowedOrigins, logger)
	channels := service.Channels{Toaster: hub, Audio: hub}

	var desktopChannels []notifier.NamedNotifier
	if cfg.Slack.BotToken != "" {
		client := resilient.New("slack", cfg.Resilience.Client(), logger)
		desktopChannels = append(desktopChannels,
			notifier.NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel, cfg.Slack.MentionTeam, client))
		logger.Info(ctx, "Slack notifier enabled")
	}
	if cfg.Discord.WebhookURL != "" {
		client := resilient.New("discord", cfg.Resilience.Client(), logger)
		desktopChannels = append(desktopChannels,
			notifier.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Discord.Username, client))
		logger.Info(ctx, "Discord notifier enabled")
	}
	if len(desktopChannels) > 0 {
		desktop := notifier.NewAsync(notifier.NewFanOut(desktopChannels...),
			cfg.Dispatcher.DesktopQueueSize, cfg.Dispatcher.DesktopTimeout, logger)
		defer desktop.Close()
		channels.Desktop = desktop
	} else {
		logger.Warn(ctx, "No desktop channel configured (set SLACK_BOT_TOKEN or DISCORD_WEBHOOK_URL)")
	}

	// Alert store, hydrated before anything listens so restored alerts count as seen
	store := service.NewStore(logger)
	mirror := service.NewMirror(alertRepo, logger)
	if n, err := mirror.Hydrate(ctx, store, time.Now().Add(-cfg.Database.HydrateSince), cfg.Database.HydrateLimit); err != nil {
		logger.Errorf(ctx, "Failed to hydrate alerts: %v", err)
	} else {
		logger.Infof(ctx, "Hydrated %d alerts", n)
	}
	disposeMirror := mirror.Attach(ctx, store)

	// Escalation
	var activator ports.CampaignActivator
	if cfg.Campaign.URL != "" {
		activator = campaign.NewHTTPActivator(cfg.Campaign.URL, cfg.Campaign.Token, cfg.Resilience.Client(), logger)
		logger.Infof(ctx, "Campaign activation enabled (%s)", cfg.Campaign.URL)
	} else {
		logger.Warn(ctx, "CAMPAIGN_URL not set - escalation records will stay pending")
	}
	evaluator, err := service.NewEscalationEvaluator(cfg.Escalation.Service(), escalationRepo, activator, channels, logger)
	if err != nil {
		logger.Fatalf(ctx, "Failed to create escalation evaluator: %v", err)
	}
	if n, err := evaluator.Restore(ctx, cfg.Escalation.RestoreLimit); err != nil {
		logger.Errorf(ctx, "Failed to restore escalation records: %v", err)
	} else {
		logger.Infof(ctx, "Restored %d escalation records", n)
	}

	// Dispatcher
	dispatcher := service.NewDispatcher(cfg.Dispatcher.Service(), channels, logger)
	dispatcher.SetEnabled(cfg.Dispatcher.Enabled)
	dispatcher.Mount(ctx)
	disposeDispatcher := dispatcher.Attach(ctx, store)
	disposeHub := hub.Attach(store)

	// Feed
	feed := service.NewFeed(store, evaluator, cfg.Feed.PollInterval, logger)

	sources, err := config.LoadSources(cfg.Feed.SourcesFile)
	if err != nil {
		logger.Fatalf(ctx, "Failed to load feed sources: %v", err)
	}
	for _, s := range sources {
		client := resilient.New("source."+s.Name, cfg.Resilience.Client(), logger)
		feed.AddPollSource(provider.NewHTTPSource(s.Name, s.URL, s.APIKey, provider.Format(s.Format), client, logger))
		logger.Infof(ctx, "Polling %s every %s", s.Name, cfg.Feed.PollInterval)
	}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("threatpulse-api"))
		if err != nil {
			logger.Fatalf(ctx, "Failed to connect to NATS: %v", err)
		}
		defer nc.Close()
		feed.AddPushSource(provider.NewNATSSource(nc, cfg.NATS.Subject, cfg.NATS.Queue, logger))
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		feed.AddPushSource(provider.NewRedisSource(rdb, cfg.Redis.Channels, logger))
	}

	if cfg.WebSocket.URL != "" {
		feed.AddPushSource(provider.NewWebSocketSource(cfg.WebSocket.URL, nil, cfg.WebSocket.ReconnectDelay, logger))
	}

	disposeFeed, err := feed.Start(ctx)
	if err != nil {
		logger.Fatalf(ctx, "Failed to start feed: %v", err)
	}

	// gRPC health
	grpcServer := handler.NewGrpcServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		logger.Fatalf(ctx, "Failed to listen on gRPC port %s: %v", cfg.Server.GRPCPort, err)
	}
	go func() {
		logger.Infof(ctx, "gRPC health server listening on port %s", cfg.Server.GRPCPort)
		if err := grpcServer.Server().Serve(lis); err != nil {
			logger.Errorf(ctx, "gRPC server stopped: %v", err)
		}
	}()
	grpcServer.SetServing(ctx, true)

	// HTTP router
	router := mux.NewRouter()
	handler.NewRestHandler(store, evaluator, feed, dispatcher, logger).Register(router)
	router.Handle("/ws", hub).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.Use(loggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		logger.Infof(ctx, "threatpulse REST API listening on port %s", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf(ctx, "Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down...")
	grpcServer.SetServing(ctx, false)
	disposeFeed()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "Server forced to shutdown: %v", err)
	}
	grpcServer.Shutdown()

	disposeHub()
	disposeDispatcher()
	hub.Close()
	evaluator.Close()
	disposeMirror()

	logger.Info(ctx, "Server stopped gracefully")
}

func loggingMiddleware(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debugf(r.Context(), "%s %s (%v)", r.Method, r.URL.Path, time.Since(start))
		})
	}
}
