package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/freeeve/explorer/internal/eco"
	"github.com/freeeve/explorer/internal/events"
	"github.com/freeeve/explorer/internal/httpapi"
	"github.com/freeeve/explorer/internal/logx"
	"github.com/freeeve/explorer/internal/notifier"
	"github.com/freeeve/explorer/internal/processor"
	"github.com/freeeve/explorer/internal/store"
	"github.com/freeeve/explorer/internal/stream"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	var (
		// Server
		addr = flag.String("addr", ":8007", "listen address")

		// Storage
		memoryStore        = flag.Bool("memory-store", false, "use the in-memory store instead of DynamoDB")
		table              = flag.String("table", "explorer", "DynamoDB explorer table")
		notificationsTable = flag.String("notifications-table", "notifications", "DynamoDB notifications table")

		// Stream
		natsURL   = flag.String("nats", nats.DefaultURL, "NATS server URL")
		queue     = flag.String("queue", "explorer", "NATS queue group")
		batchSize = flag.Int("batch-size", 64, "events per batch")
		batchWait = flag.Duration("batch-wait", time.Second, "max wait to fill a batch")
		workers   = flag.Int("workers", 8, "concurrent events per batch")

		// ECO settings
		ecoDir = flag.String("eco-dir", "./data/eco", "Directory containing ECO .tsv files")
	)
	flag.Parse()

	logger := logx.NewLogger("explorer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		positions     store.PositionStore
		notifications store.NotificationStore
	)
	if *memoryStore {
		mem := store.NewMemory()
		positions = mem
		notifications = mem
		logger.Info().Msg("using in-memory store")
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("load AWS config")
		}
		dyn := store.NewDynamo(dynamodb.NewFromConfig(awsCfg), *table, *notificationsTable)
		positions = dyn
		notifications = dyn
		logger.Info().Str("table", *table).Msg("using DynamoDB store")
	}

	// Load ECO opening database
	var ecoDB *eco.Database
	if *ecoDir != "" {
		ecoDB = eco.NewDatabase()
		if err := ecoDB.LoadDir(*ecoDir); err != nil {
			logger.Warn().Err(err).Str("dir", *ecoDir).Msg("failed to load ECO database")
			ecoDB = nil
		} else {
			logger.Info().Int("openings", ecoDB.Count()).Msg("ECO database loaded")
		}
	}

	// Stream
	nc, err := nats.Connect(*natsURL, nats.Name("explorer"))
	if err != nil {
		logger.Fatal().Err(err).Str("url", *natsURL).Msg("connect NATS")
	}
	defer nc.Close()

	changedSub, err := stream.Subscribe(nc, events.SubjectGameChanged, *queue, 4*(*batchSize))
	if err != nil {
		logger.Fatal().Err(err).Msg("subscribe changed")
	}
	defer changedSub.Close()

	indexedSub, err := stream.Subscribe(nc, events.SubjectGameIndexed, *queue, 4*(*batchSize))
	if err != nil {
		logger.Fatal().Err(err).Msg("subscribe indexed")
	}
	defer indexedSub.Close()

	// Processor
	writer := processor.NewWriter(positions, stream.NewPublisher(nc), logger.With().Str("component", "writer").Logger())
	proc := processor.New(processor.Config{
		Writer:    writer,
		Logger:    logger.With().Str("component", "processor").Logger(),
		BatchSize: *batchSize,
		BatchWait: *batchWait,
		Workers:   *workers,
	})
	go func() {
		if err := proc.Run(ctx, changedSub); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("processor stopped")
		}
	}()
	logger.Info().Str("subject", events.SubjectGameChanged).Msg("started processor")

	// Notifier
	notif := notifier.New(notifier.Config{
		Followers:     positions,
		Notifications: notifications,
		Logger:        logger.With().Str("component", "notifier").Logger(),
		BatchSize:     *batchSize,
		BatchWait:     *batchWait,
	})
	go func() {
		if err := notif.Run(ctx, indexedSub); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("notifier stopped")
		}
	}()
	logger.Info().Str("subject", events.SubjectGameIndexed).Msg("started notifier")

	// HTTP server
	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, positions, ecoDB, proc),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().
		Uint64("handled", proc.Handled()).
		Uint64("failed", proc.Failures()).
		Msg("processor totals")
}
