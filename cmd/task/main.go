package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/tiffinlabs/tiffin/broker"
	"github.com/tiffinlabs/tiffin/db"
	"github.com/tiffinlabs/tiffin/payment"
	"github.com/tiffinlabs/tiffin/plan"
	"github.com/tiffinlabs/tiffin/subscription"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var dotFile string
	var err error

	now := time.Now().UTC()
	runExtend := flag.Bool("extend", false, "roll eligible full-month subscriptions into the target period")
	runBackfill := flag.Bool("backfill", false, "create missing payments for active subscriptions")
	runOverdue := flag.Bool("overdue", false, "flip unpaid payments past their due date to Overdue")
	runCompleted := flag.Bool("completed", false, "mark active subscriptions past their end date as Completed")
	targetYear := flag.Int("year", now.Year(), "target year for -extend")
	targetMonth := flag.Int("month", int(now.Month()), "target month for -extend")
	flag.Parse()

	// Determine running environment and initialize structural logger
	env := os.Getenv("ENV")
	if "production" == env {
		dotFile = ".env.production"
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: env,
		Debug:       "production" != env,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "task",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	// Initialize backend connections
	db, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	var producer broker.Producer
	if amqpURI := os.Getenv("AMQP_URI"); amqpURI != "" {
		amqpBroker, err := broker.NewAMQPBroker(amqpURI)
		if err != nil {
			logger.Fatal("Cannot connect to Broker",
				zap.Error(err),
			)
		}
		defer amqpBroker.Close()
		producer = amqpBroker
	}

	planManager, err := plan.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize PlanManager",
			zap.Error(err),
		)
	}

	paymentManager, err := payment.NewManager(payment.ManagerOptions{
		DB:          db,
		Logger:      logger,
		PlanManager: planManager,
		Producer:    producer,
	})
	if err != nil {
		logger.Fatal("Cannot initialize PaymentManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:          db,
		Logger:      logger,
		PlanManager: planManager,
		Payments:    paymentManager,
		Producer:    producer,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	ctx := context.Background()

	if *runExtend {
		result, err := subscriptionManager.AutoExtend(ctx, *targetYear, time.Month(*targetMonth))
		if err != nil {
			logger.Fatal("AutoExtend failed",
				zap.Error(err),
			)
		}
		logger.Info("AutoExtend finished",
			zap.Int("Year", *targetYear),
			zap.Int("Month", *targetMonth),
			zap.Int("Extended", len(result.Extended)),
			zap.Int("Skipped", len(result.Skipped)),
			zap.Int("Errors", len(result.Errors)),
		)
		for _, outcome := range result.Errors {
			logger.Error("AutoExtend item failed",
				zap.String("SourceSubscriptionID", outcome.SourceSubscriptionID),
				zap.String("CustomerID", outcome.CustomerID),
				zap.String("Message", outcome.Message),
			)
		}
	}

	if *runBackfill {
		result, err := paymentManager.Backfill(ctx)
		if err != nil {
			logger.Fatal("Backfill failed",
				zap.Error(err),
			)
		}
		logger.Info("Backfill finished",
			zap.Int("Created", len(result.Created)),
			zap.Int("Skipped", len(result.Skipped)),
			zap.Int("Errors", len(result.Errors)),
		)
		for _, outcome := range result.Errors {
			logger.Error("Backfill item failed",
				zap.String("SubscriptionID", outcome.SubscriptionID),
				zap.String("CustomerID", outcome.CustomerID),
				zap.String("Message", outcome.Message),
			)
		}
	}

	if *runOverdue {
		flipped, err := paymentManager.MarkOverdue(ctx, now)
		if err != nil {
			logger.Fatal("MarkOverdue failed",
				zap.Error(err),
			)
		}
		logger.Info("MarkOverdue finished",
			zap.Int64("Flipped", flipped),
		)
	}

	if *runCompleted {
		completed, err := subscriptionManager.MarkCompleted(ctx, now)
		if err != nil {
			logger.Fatal("MarkCompleted failed",
				zap.Error(err),
			)
		}
		logger.Info("MarkCompleted finished",
			zap.Int64("Completed", completed),
		)
	}
}
