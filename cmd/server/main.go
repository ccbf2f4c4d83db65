package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/config"
	"github.com/lendfast/origination-engine/internal/handler"
	"github.com/lendfast/origination-engine/internal/logging"
	"github.com/lendfast/origination-engine/internal/provider"
	"github.com/lendfast/origination-engine/internal/push"
	"github.com/lendfast/origination-engine/internal/repository"
	"github.com/lendfast/origination-engine/internal/service"
	"github.com/lendfast/origination-engine/pkg/response"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	redisClient := initRedis(cfg)
	defer redisClient.Close()

	loanRepo := repository.NewLoanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	snapshotCache := repository.NewSnapshotCache(redisClient, cfg.Progress.CacheTTL)

	bus := push.NewBus(redisClient, log)
	phoneVerifier := provider.NewPhoneClient(cfg.Providers, log)
	identityVerifier := provider.NewIdentityClient(cfg.Providers, log)

	billingService := service.NewBillingService(loanRepo, paymentRepo, cfg, log)
	applicationService := service.NewApplicationService(
		applicationRepo,
		loanRepo,
		snapshotCache,
		phoneVerifier,
		identityVerifier,
		bus,
		cfg.Progress.SaveDebounce,
		log,
	)
	defer applicationService.CloseAll()

	billingHandler := handler.NewBillingHandler(billingService)
	applicationHandler := handler.NewApplicationHandler(applicationService)
	verificationHandler := handler.NewVerificationHandler(applicationService)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	router := setupRoutes(billingHandler, applicationHandler, verificationHandler, healthHandler, log)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(
	billingHandler *handler.BillingHandler,
	applicationHandler *handler.ApplicationHandler,
	verificationHandler *handler.VerificationHandler,
	healthHandler *handler.HealthHandler,
	log *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.CORSMiddleware)
	router.Use(response.LoggingMiddleware(log))

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/loans", billingHandler.CreateLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/schedule", billingHandler.GetSchedule).Methods("GET")
	api.HandleFunc("/loans/{loanId}/outstanding", billingHandler.GetOutstanding).Methods("GET")
	api.HandleFunc("/loans/{loanId}/delinquent", billingHandler.IsDelinquent).Methods("GET")
	api.HandleFunc("/loans/{loanId}/payment", billingHandler.MakePayment).Methods("POST")

	api.HandleFunc("/applications/{loanId}", applicationHandler.GetState).Methods("GET")
	api.HandleFunc("/applications/{loanId}/answers", applicationHandler.UpdateAnswers).Methods("PATCH")
	api.HandleFunc("/applications/{loanId}/next", applicationHandler.Next).Methods("POST")
	api.HandleFunc("/applications/{loanId}/prev", applicationHandler.Prev).Methods("POST")
	api.HandleFunc("/applications/{loanId}/submit", applicationHandler.Submit).Methods("POST")

	api.HandleFunc("/applications/{loanId}/phone/send", verificationHandler.SendPhoneCode).Methods("POST")
	api.HandleFunc("/applications/{loanId}/phone/verify", verificationHandler.VerifyPhoneCode).Methods("POST")
	api.HandleFunc("/applications/{loanId}/identity/session", verificationHandler.StartIdentitySession).Methods("POST")
	api.HandleFunc("/applications/{loanId}/identity/status", verificationHandler.PollIdentityStatus).Methods("GET")

	// Provider callbacks
	webhooks := router.PathPrefix("/webhooks").Subrouter()
	webhooks.HandleFunc("/identity", verificationHandler.IdentityWebhook).Methods("POST")
	webhooks.HandleFunc("/phone", verificationHandler.PhoneWebhook).Methods("POST")

	return router
}
