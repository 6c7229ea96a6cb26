// Notifico worker — executes pipeline tasks from an AMQP broker without
// serving any HTTP surface. Scale these horizontally next to one notifico
// server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

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

	if cfg.AMQPURL == "" {
		slog.Error("AMQP is required for the worker; there is no in-process mode")
		os.Exit(1)
	}

	tuning, err := config.LoadTuning(*tuningPath)
	if err != nil {
		slog.Error("Failed to load tuning", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting notifico worker",
		"version", version.GitCommit,
		"workers", tuning.Workers)

	ctx := context.Background()

	var (
		pipelineStore store.PipelineStore
		directory     store.RecipientDirectory
		templates     store.TemplateSource
		credStore     store.CredentialStore
		subscriptions store.SubscriptionStore
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
		credStore, subscriptions, recorder = pg, pg, pg
		slog.Info("Connected to PostgreSQL database")
	} else {
		mem := store.NewMemory()
		pipelineStore, directory, templates = mem, mem, mem
		credStore, subscriptions = mem, mem
		recorder = store.NewLogRecorder()
		slog.Warn("DB is not set, resolving entities from the empty in-memory store")
	}
	credentials := store.NewLayeredCredentials(store.NewEnvCredentials(os.Environ()), credStore)

	containerID := cfg.AMQPPrefix + uuid.NewString()
	pipelineQueue := queue.NewAMQP(queue.AMQPConfig{
		URL:            cfg.AMQPURL,
		Address:        cfg.AMQPPrefix + "pipelines",
		ContainerID:    containerID,
		Credit:         int32(tuning.AMQPCredit),
		InitialBackoff: tuning.AMQPInitialBackoff.Std(),
		MaxBackoff:     tuning.AMQPMaxBackoff.Std(),
	})
	eventQueue := queue.NewAMQP(queue.AMQPConfig{
		URL:            cfg.AMQPURL,
		Address:        cfg.AMQPPrefix + "events",
		ContainerID:    containerID,
		Credit:         int32(tuning.AMQPCredit),
		InitialBackoff: tuning.AMQPInitialBackoff.Std(),
		MaxBackoff:     tuning.AMQPMaxBackoff.Std(),
	})
	slog.Info("Using AMQP queues", "prefix", cfg.AMQPPrefix, "container_id", containerID)

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

	executor := engine.NewExecutor(eng, pipelineQueue, tuning.Workers)
	executor.Start(ctx)

	dispatcher := engine.NewDispatcher(pipelineStore, pipelineQueue)
	consumer := engine.NewEventConsumer(eventQueue, dispatcher)
	consumer.Start(ctx)

	slog.Info("Notifico worker started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, tuning.ShutdownTimeout.Std())
	defer cancel()

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
