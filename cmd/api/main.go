package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/washclub/api/internal/events"
	"github.com/washclub/api/internal/handlers"
	"github.com/washclub/api/internal/messaging"
	"github.com/washclub/api/internal/platform/config"
	pfirestore "github.com/washclub/api/internal/platform/firestore"
	"github.com/washclub/api/internal/platform/observability"
	firestoreRepo "github.com/washclub/api/internal/repositories/firestore"
	"github.com/washclub/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	customerRepo, err := firestoreRepo.NewCustomerRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise customer repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	workerRepo, err := firestoreRepo.NewWorkerRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise worker repository", zap.Error(err))
	}
	settingsRepo, err := firestoreRepo.NewSettingsRepository(firestoreProvider, cfg.Loyalty)
	if err != nil {
		logger.Fatal("failed to initialise settings repository", zap.Error(err))
	}
	auditRepo, err := firestoreRepo.NewAuditLogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise audit log repository", zap.Error(err))
	}
	alertRepo, err := firestoreRepo.NewAlertRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise alert repository", zap.Error(err))
	}

	fcmClient, err := messaging.NewFCMClient(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise fcm client", zap.Error(err))
	}
	notifier, err := messaging.NewFCMDispatcher(messaging.FCMDispatcherDeps{
		Sender:    fcmClient,
		Customers: customerRepo,
	})
	if err != nil {
		logger.Fatal("failed to initialise notification dispatcher", zap.Error(err))
	}

	lifecycleService, err := services.NewLifecycleService(services.LifecycleServiceDeps{
		Orders:      orderRepo,
		Customers:   customerRepo,
		Workers:     workerRepo,
		Settings:    settingsRepo,
		AuditLogs:   auditRepo,
		Alerts:      alertRepo,
		Notifier:    notifier,
		Clock:       time.Now,
		ServiceName: cfg.Loyalty.ServiceName,
	})
	if err != nil {
		logger.Fatal("failed to initialise lifecycle service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    orderRepo,
		Customers: customerRepo,
		Settings:  settingsRepo,
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}
	reportService, err := services.NewReportService(services.ReportServiceDeps{Orders: orderRepo})
	if err != nil {
		logger.Fatal("failed to initialise report service", zap.Error(err))
	}
	reminderService, err := services.NewReminderService(services.ReminderServiceDeps{
		Customers: customerRepo,
		Settings:  settingsRepo,
		Notifier:  notifier,
	})
	if err != nil {
		logger.Fatal("failed to initialise reminder service", zap.Error(err))
	}
	alertService, err := services.NewAlertService(services.AlertServiceDeps{Alerts: alertRepo})
	if err != nil {
		logger.Fatal("failed to initialise alert service", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	subscription := pubsubClient.Subscription(cfg.PubSub.OrderEventsSubID)
	subscription.ReceiveSettings.MaxOutstandingMessages = cfg.PubSub.ReceiveConcurrency

	consumer, err := events.NewConsumer(events.ConsumerDeps{
		Subscription: subscription,
		Lifecycle:    lifecycleService,
		Logger:       logger.Named("events"),
	})
	if err != nil {
		logger.Fatal("failed to initialise event consumer", zap.Error(err))
	}

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		logger.Info("order event consumer starting",
			zap.String("subscription", cfg.PubSub.OrderEventsSubID),
			zap.Int("concurrency", cfg.PubSub.ReceiveConcurrency),
		)
		if err := consumer.Run(consumerCtx); err != nil {
			logger.Error("order event consumer stopped", zap.Error(err))
		}
	}()

	healthHandlers := handlers.NewHealthHandlers(map[string]handlers.ReadinessCheck{
		"firestore": func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
			defer cancel()
			iter := firestoreClient.Collections(ctx)
			if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		},
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RequestLoggerMiddleware(),
	}

	orderHandlers := handlers.NewOrderHandlers(orderService)
	customerHandlers := handlers.NewCustomerHandlers(orderService)
	adminHandlers := handlers.NewAdminHandlers(reportService, alertService, reminderService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCustomerRoutes(customerHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("wash api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopConsumer()
	consumerWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
