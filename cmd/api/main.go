package main

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/tiffinlabs/tiffin/attendance"
	"github.com/tiffinlabs/tiffin/broker"
	"github.com/tiffinlabs/tiffin/customer"
	"github.com/tiffinlabs/tiffin/db"
	"github.com/tiffinlabs/tiffin/payment"
	"github.com/tiffinlabs/tiffin/plan"
	"github.com/tiffinlabs/tiffin/subscription"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
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

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
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
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	db, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	// Billing events are optional for the API process: without a broker
	// the managers simply skip publishing
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

	customerManager, err := customer.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize CustomerManager",
			zap.Error(err),
		)
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

	attendanceManager, err := attendance.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize AttendanceManager",
			zap.Error(err),
		)
	}

	customerRouter, err := customer.NewService(customer.Options{
		CustomerManager: customerManager,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Customer Service Router",
			zap.Error(err),
		)
	}

	planRouter, err := plan.NewService(plan.Options{
		PlanManager: planManager,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Plan Service Router",
			zap.Error(err),
		)
	}

	subscriptionRouter, err := subscription.NewService(subscription.ServiceOptions{
		CustomerManager:     customerManager,
		PlanManager:         planManager,
		SubscriptionManager: subscriptionManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	paymentRouter, err := payment.NewService(payment.ServiceOptions{
		PaymentManager: paymentManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Payment Service Router",
			zap.Error(err),
		)
	}

	attendanceRouter, err := attendance.NewService(attendance.ServiceOptions{
		AttendanceManager: attendanceManager,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Attendance Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("SITE_URL")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rootRouter.Mount("/customers", customerRouter.Router())
	rootRouter.Mount("/plans", planRouter.Router())
	rootRouter.Mount("/subscriptions", subscriptionRouter.Router())
	rootRouter.Mount("/payments", paymentRouter.Router())
	rootRouter.Mount("/attendance", attendanceRouter.Router())

	rootRouter.HandleFunc("/pprof/*", pprof.Index)
	rootRouter.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	rootRouter.HandleFunc("/pprof/profile", pprof.Profile)
	rootRouter.HandleFunc("/pprof/symbol", pprof.Symbol)
	rootRouter.HandleFunc("/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    ":42069",
	}

	logger.Info("API started")

	log.Fatalln(srv.ListenAndServe())

}
