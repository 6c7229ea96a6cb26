// Notifico server — serves the ingest and public HTTP APIs, dispatches
// events to pipelines and executes pipeline tasks.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/notifico-tech/notifico/pkg/api"
	"github.com/notifico-tech/notifico/pkg/auth"
	"github.com/notifico-tech/notifico/pkg/config"
	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/plugin/attachment"
	"github.com/notifico-tech/notifico/pkg/plugin/core"
	"github.com/notifico-tech/notifico/pkg/plugin/subscription"
	"github.com/notifico-tech/notifico/pkg/plugin/templater"
	"github.com/notifico-tech/notifico/pkg/queue"
	"github.com/notifico-tech/notifico/pkg/store"
	"github.com/notifico-tech/notifico/pkg/transport"
	"github.com/notifico-tech/notifico/pkg/transport/gotify"
	"github.com/notifico-tech/notifico/pkg/transport/ntfy"
	"github.com/notifico-tech/notifico/pkg/transport/pushover"
	"github.com/notifico-tech/notifico/pkg/transport/slack"
	"github.com/notifico-tech/notifico/pkg/transport/smpp"
	"github.com/notifico-tech/notifico/pkg/transport/smtp"
	"github.com/notifico-tech/notifico/pkg/transport/telegram"
	"github.com/notifico-tech/notifico/pkg/transport/whatsapp"
	"github.com/notifico-tech/notifico/pkg/version"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	tuningPath := flag.String("tuning", os.Getenv("TUNING_PATH"), "Path to tuning YAML file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: cfg.LogLevel})))

	tuning, err := config.LoadTuning(*tuningPath)
	if err != nil {
		slog.Error("Failed to load tuning", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting notifico",
		"version", version.GitCommit,
		"ingest_bind", cfg.IngestBind,
		"public_bind", cfg.PublicBind,
		"workers", tuning.Workers)

	ctx := context.Background()

	// 1. Stores: Postgres when DB is configured, in-memory otherwise.
	var (
		pipelineStore store.PipelineStore
		directory     store.RecipientDirectory
		templates     store.TemplateSource
		credStore     store.CredentialStore
		subscriptions store.SubscriptionStore
		apiKeys       store.APIKeyStore
		recorder      store.DeliveryRecorder
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		pipelineStore, directory, templates = pg, pg, pg
		credStore, subscriptions, apiKeys, recorder = pg, pg, pg, pg
		slog.Info("Connected to PostgreSQL database")
	} else {
		mem := store.NewMemory()
		pipelineStore, directory, templates = mem, mem, mem
		credStore, subscriptions, apiKeys = mem, mem, mem
		recorder = store.NewLogRecorder()
		slog.Warn("DB is not set, running with the in-memory store; all state is lost on restart")
	}

	// Environment credentials shadow stored ones.
	credentials := store.NewLayeredCredentials(store.NewEnvCredentials(os.Environ()), credStore)

	// 2. Queues: AMQP when a broker is configured, in-process otherwise.
	var pipelineQueue, eventQueue queue.Queue
	if cfg.AMQPURL != "" {
		containerID := cfg.AMQPPrefix + uuid.NewString()
		pipelineQueue = queue.NewAMQP(queue.AMQPConfig{
			URL:            cfg.AMQPURL,
			Address:        cfg.AMQPPrefix + "pipelines",
			ContainerID:    containerID,
			Credit:         int32(tuning.AMQPCredit),
			InitialBackoff: tuning.AMQPInitialBackoff.Std(),
			MaxBackoff:     tuning.AMQPMaxBackoff.Std(),
		})
		eventQueue = queue.NewAMQP(queue.AMQPConfig{
			URL:            cfg.AMQPURL,
			Address:        cfg.AMQPPrefix + "events",
			ContainerID:    containerID,
			Credit:         int32(tuning.AMQPCredit),
			InitialBackoff: tuning.AMQPInitialBackoff.Std(),
			MaxBackoff:     tuning.AMQPMaxBackoff.Std(),
		})
		slog.Info("Using AMQP queues", "prefix", cfg.AMQPPrefix, "container_id", containerID)
	} else {
		pipelineQueue = queue.NewMemory(tuning.PipelineQueueCapacity)
		eventQueue = queue.NewMemory(tuning.EventQueueCapacity)
	}

	// 3. Engine: step plugins and wrapped transports.
	issuer := auth.NewIssuer([]byte(cfg.SecretKey))

	var fileSource *templater.FileSource
	if cfg.TemplatesPath != "" {
		fileSource = templater.NewFileSource(cfg.TemplatesPath)
	}

	eng := engine.New()
	eng.Register(core.New(directory, pipelineQueue))
	eng.Register(templater.New(templates, fileSource))
	eng.Register(attachment.New(cfg.AllowFileAttachments))
	eng.Register(subscription.New(subscriptions, issuer, cfg.PublicURL))
	for _, t := range []transport.SimpleTransport{
		smtp.New(), smpp.New(), telegram.New(), whatsapp.New(),
		slack.New(), pushover.New(), gotify.New(), ntfy.New(),
	} {
		eng.Register(transport.Wrap(t, credentials, recorder))
	}
	slog.Info("Engine initialized", "steps", eng.Tags())

	// 4. Executor and event consumer.
	executor := engine.NewExecutor(eng, pipelineQueue, tuning.Workers)
	executor.Start(ctx)

	dispatcher := engine.NewDispatcher(pipelineStore, pipelineQueue)
	consumer := engine.NewEventConsumer(eventQueue, dispatcher)
	consumer.Start(ctx)

	// 5. HTTP servers.
	ingest := api.NewIngest(eventQueue, apiKeys, cfg.IngestBind, tuning.APIKeyCacheTTL.Std())
	public := api.NewPublic(subscriptions, issuer, cfg.PublicBind)

	errCh := make(chan error, 2)
	go func() {
		if err := ingest.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := public.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Notifico started successfully")

	// 6. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: stop intake first, then drain the workers,
	// then close the queues.
	shutdownCtx, cancel := context.WithTimeout(ctx, tuning.ShutdownTimeout.Std())
	defer cancel()

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := ingest.Shutdown(httpCtx); err != nil {
		slog.Error("Ingest server shutdown error", "error", err)
	}
	if err := public.Shutdown(httpCtx); err != nil {
		slog.Error("Public server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		consumer.Stop()
		executor.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Workers stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded; in-flight tasks will be redelivered")
	}

	if err := eventQueue.Close(shutdownCtx); err != nil {
		slog.Error("Event queue close error", "error", err)
	}
	if err := pipelineQueue.Close(shutdownCtx); err != nil {
		slog.Error("Pipeline queue close error", "error", err)
	}

	slog.Info("Shutdown complete")
}
