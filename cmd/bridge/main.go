// Bridge serves the CRM glue endpoints: account linking, scheduling
// webhooks, messaging notifications and the LLM action gateway.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bturcanu/crmbridge/pkg/api"
	"github.com/bturcanu/crmbridge/pkg/archive"
	"github.com/bturcanu/crmbridge/pkg/assistant"
	"github.com/bturcanu/crmbridge/pkg/auth"
	"github.com/bturcanu/crmbridge/pkg/broker"
	"github.com/bturcanu/crmbridge/pkg/calendly"
	"github.com/bturcanu/crmbridge/pkg/config"
	"github.com/bturcanu/crmbridge/pkg/metrics"
	"github.com/bturcanu/crmbridge/pkg/notify"
	bridgeOtel "github.com/bturcanu/crmbridge/pkg/otel"
	"github.com/bturcanu/crmbridge/pkg/store"
	"github.com/bturcanu/crmbridge/pkg/toolserver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLM calls with remote tool use routinely exceed the usual 30s budget.
const requestTimeout = 2 * time.Minute

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── Metrics + OpenTelemetry ──────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	otelShutdown, err := bridgeOtel.Setup(ctx, bridgeOtel.Config{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Registerer:   reg,
	})
	if err != nil {
		log.Error("otel setup failed", "error", err)
	} else {
		defer otelShutdown(context.Background()) //nolint:errcheck // best-effort shutdown
	}

	// ── Postgres ─────────────────────────────────────────────────────────
	if cfg.AutoMigrate {
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	db := store.NewStore(pool)

	// ── Delivery archive (optional) ──────────────────────────────────────
	var deliveries *archive.Archiver
	if cfg.ArchiveEndpoint != "" {
		uploader, err := archive.NewMinioUploader(cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, cfg.ArchiveSecure)
		if err != nil {
			log.Error("archive client failed", "error", err)
			os.Exit(1)
		}
		if err := uploader.EnsureBucket(ctx); err != nil {
			log.Error("archive bucket unavailable", "bucket", cfg.ArchiveBucket, "error", err)
			os.Exit(1)
		}
		deliveries = archive.New(uploader)
		log.Info("delivery archive enabled", "bucket", cfg.ArchiveBucket)
	}

	// ── Dependencies ─────────────────────────────────────────────────────
	brokerClient := broker.NewClient(cfg.ComposioBaseURL, cfg.ComposioAPIKey, rec)

	toolkits := make([]broker.Toolkit, 0, len(cfg.ToolServerToolkits))
	for _, tk := range cfg.ToolServerToolkits {
		id, _ := cfg.AuthConfigFor(tk)
		toolkits = append(toolkits, broker.Toolkit{Toolkit: tk, AuthConfig: id})
	}
	servers := toolserver.NewResolver(brokerClient, cfg.ToolServerName, toolkits, cfg.ToolServerCache, log)

	forwarder := notify.NewForwarder(brokerClient, db, notify.ReplyRoute{
		UserID:    cfg.InstantlySlackUserID,
		ChannelID: cfg.InstantlySlackChannelID,
	}, rec, log)

	receiverOpts := calendly.ReceiverOptions{
		SigningKey: cfg.CalendlySigningKey,
		Metrics:    rec,
		Logger:     log,
	}
	if deliveries != nil {
		receiverOpts.Archive = deliveries
	}
	if cfg.NotifyOnDelivery {
		receiverOpts.Notifier = forwarder
	}

	gateway := assistant.NewGateway(
		assistant.NewClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey),
		servers,
		assistant.Options{
			Model:        cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: cfg.SystemPrompt,
			Metrics:      rec,
			Logger:       log,
		},
	)

	srvAPI := api.NewServer(api.Deps{
		Broker:      brokerClient,
		Registrar:   calendly.NewRegistrar(brokerClient, cfg.BackendBaseURL, cfg.CalendlySigningKey, log),
		Receiver:    calendly.NewReceiver(db, receiverOpts),
		Forwarder:   forwarder,
		Channels:    notify.NewChannels(brokerClient),
		Assistant:   gateway,
		ToolServers: servers,
		Settings:    db,
		Store:       db,
		HookKeys:    auth.NewKeyStore(cfg.InternalAPIKeys),
		Metrics:     rec,
	}, api.Options{
		BackendBaseURL:   cfg.BackendBaseURL,
		FrontendURL:      cfg.FrontendURL,
		AuthConfigs:      cfg.AuthConfigs,
		RateLimitPerUser: cfg.RateLimitPerUser,
		ReplyForwarding:  cfg.InstantlyEnabled(),
		Logger:           log,
	})

	// ── Router ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{assistant.StreamProtocolHeader},
		MaxAge:         300,
	}))
	srvAPI.Register(r)

	// ── Metrics (internal) ───────────────────────────────────────────────
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	// ── Server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("bridge starting",
			"addr", cfg.Addr,
			"tool_server", cfg.ToolServerName,
			"toolkits", cfg.ToolServerToolkits,
			"reply_forwarding", cfg.InstantlyEnabled(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down bridge")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := metricsSrv.Shutdown(shutCtx); err != nil {
		log.Error("metrics server shutdown error", "error", err)
	}
}
