package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"notra/internal/config"
	"notra/internal/generation"
	"notra/internal/logging"
	"notra/internal/observability"
	"notra/internal/qstash"
	"notra/internal/server"
	"notra/internal/storage/postgres"
	"notra/internal/trigger"
	"notra/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	logger := logging.FromObservability(obsLogger, "Main")
	logger.Info("Starting notra server...")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.MustNewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	triggerStore, err := postgres.NewTriggerStore(pool)
	if err != nil {
		log.Fatalf("Failed to create trigger store: %v", err)
	}
	postStore, err := postgres.NewPostStore(pool)
	if err != nil {
		log.Fatalf("Failed to create post store: %v", err)
	}
	checkpointStore, err := postgres.NewCheckpointStore(pool)
	if err != nil {
		log.Fatalf("Failed to create checkpoint store: %v", err)
	}
	directoryStore, err := postgres.NewDirectoryStore(pool)
	if err != nil {
		log.Fatalf("Failed to create directory store: %v", err)
	}
	brandStore, err := postgres.NewBrandStore(pool)
	if err != nil {
		log.Fatalf("Failed to create brand store: %v", err)
	}

	registryClient, err := qstash.NewClient(qstash.Config{
		BaseURL:     cfg.Scheduler.BaseURL,
		Token:       cfg.Scheduler.Token,
		CallbackURL: cfg.Scheduler.CallbackURL,
		Timeout:     cfg.Scheduler.Timeout,
	}, logging.FromObservability(obsLogger, "QStash"))
	if err != nil {
		log.Fatalf("Failed to create schedule client: %v", err)
	}
	logger.Info("Schedule client configured (base %s, token %s)", cfg.Scheduler.BaseURL, observability.SanitizeAPIKey(cfg.Scheduler.Token))

	triggerService := trigger.NewService(
		triggerStore,
		registryClient,
		logging.FromObservability(obsLogger, "Triggers"),
		metrics,
	)

	var generator generation.Generator
	if cfg.Generation.APIKey != "" {
		generator, err = generation.NewOpenAIGenerator(generation.OpenAISettings{
			APIKey:  cfg.Generation.APIKey,
			BaseURL: cfg.Generation.BaseURL,
			Model:   cfg.Generation.Model,
		})
		if err != nil {
			log.Fatalf("Failed to create generator: %v", err)
		}
		logger.Info("Generation client configured (model %s, key %s)", cfg.Generation.Model, observability.SanitizeAPIKey(cfg.Generation.APIKey))
	} else {
		logger.Warn("No generation API key configured, using mock generator")
		generator = &generation.MockGenerator{}
	}

	runner := workflow.NewRunner(workflow.RunnerDeps{
		Triggers:    triggerStore,
		Windows:     triggerStore,
		Directory:   directoryStore,
		Brands:      brandStore,
		Generator:   generator,
		Posts:       postStore,
		Checkpoints: checkpointStore,
		Logger:      logging.FromObservability(obsLogger, "Workflow"),
		Metrics:     metrics,
	})

	var publisher server.RunPublisher
	if cfg.Queue.Enabled {
		nc, err := nats.Connect(cfg.Queue.URL, nats.Name("notra-server"))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Drain() //nolint:errcheck

		queueCfg := workflow.QueueConfig{Stream: cfg.Queue.Stream}
		pub, err := workflow.NewPublisher(nc, queueCfg, logging.FromObservability(obsLogger, "RunQueue"))
		if err != nil {
			log.Fatalf("Failed to create run publisher: %v", err)
		}
		publisher = pub

		consumer, err := workflow.NewConsumer(nc, runner, queueCfg, logging.FromObservability(obsLogger, "RunConsumer"))
		if err != nil {
			log.Fatalf("Failed to create run consumer: %v", err)
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("Run consumer stopped: %v", err)
			}
		}()
		logger.Info("Run queue enabled (stream %s)", cfg.Queue.Stream)
	} else {
		logger.Info("Run queue disabled, schedule callbacks execute inline")
	}

	var verifier *qstash.SignatureVerifier
	if cfg.Scheduler.SigningKey != "" {
		verifier, err = qstash.NewSignatureVerifier(cfg.Scheduler.SigningKey)
		if err != nil {
			log.Fatalf("Failed to create signature verifier: %v", err)
		}
	} else {
		logger.Warn("No signing key configured, schedule callbacks are unverified")
	}

	router := server.NewRouter(server.RouterDeps{
		Triggers:  server.NewTriggerHandler(triggerService, logging.FromObservability(obsLogger, "TriggerAPI")),
		Workflows: server.NewWorkflowHandler(runner, publisher, verifier, logging.FromObservability(obsLogger, "WorkflowAPI")),
		Registry:  registry,
		Logger:    logging.FromObservability(obsLogger, "HTTP"),
	})

	srv := server.New(cfg.Server.Addr, router, logging.FromObservability(obsLogger, "Server"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping...")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("Shutdown error: %v", err)
		}
	}

	logger.Info("Server stopped")
}
