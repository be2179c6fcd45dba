package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dev-maui0806/e-siremart-backend/controllers"
	"github.com/dev-maui0806/e-siremart-backend/database"
	"github.com/dev-maui0806/e-siremart-backend/kafka"
	"github.com/dev-maui0806/e-siremart-backend/logger"
	"github.com/dev-maui0806/e-siremart-backend/middleware"
	aws_pkg "github.com/dev-maui0806/e-siremart-backend/pkg/aws"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/dev-maui0806/e-siremart-backend/repository"
	"github.com/dev-maui0806/e-siremart-backend/routes"
	"github.com/dev-maui0806/e-siremart-backend/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "order-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	var cloudWatch io.Writer
	if cfg.CloudWatchEnabled {
		cw, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch logging disabled: %v", err)
		} else {
			cloudWatch = cw
		}
	}
	zapLogger, err := logger.New(cfg.AppEnv, cloudWatch)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.Connect(database.PostgresConfig{
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		DB:       cfg.PostgresDB,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		SSLMode:  cfg.PostgresSSLMode,
		TimeZone: cfg.PostgresTimeZone,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Migration failed", zap.Error(err))
	}

	var idem repository.IdempotencyStore
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Warn("Redis unavailable, idempotency keys and refund locks disabled", zap.Error(err))
	} else {
		idem = repository.NewRedisIdempotencyStore(redisClient, "marketplace:")
	}

	var gateways []providers.PaymentGateway
	var stripeGateway *providers.StripeGateway
	if cfg.StripeAPIKey != "" {
		stripeGateway = providers.NewStripeGateway(cfg.StripeAPIKey, cfg.StripeWebhookSecret, cfg.StripeSuccessURL(), cfg.StripeCancelURL())
		gateways = append(gateways, stripeGateway)
	}
	if cfg.RazorpayKeyID != "" {
		gateways = append(gateways, providers.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret))
	}

	var events services.EventPublisher
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, zapLogger)
		events = producer
	}

	uow := repository.NewGormUnitOfWork(db)
	metrics := aws_pkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, cfg.CloudWatchEnabled)
	notifier := services.NewEventNotifier(aws_pkg.NewSNSClient(awsCfg), cfg.NotificationTopicArn, events, uow.Repos().Directory, zapLogger)

	orderService := services.NewOrderService(
		uow,
		providers.NewRegistry(gateways...),
		idem,
		notifier,
		metrics,
		services.OrderServiceConfig{Currency: cfg.Currency, IdempotencyTTL: cfg.CheckoutIdempotencyTTL},
		zapLogger,
	)
	orderController := controllers.NewOrderController(orderService, cfg.FrontendURL, zapLogger)

	if cfg.StripeEventsQueueURL != "" && stripeGateway != nil {
		consumer := services.NewStripeEventConsumer(
			aws_pkg.NewSQSConsumer(awsCfg, cfg.StripeEventsQueueURL, zapLogger),
			stripeGateway,
			orderService,
			zapLogger,
		)
		go consumer.Start(ctx)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(middleware.RequestLogger(zapLogger))
	r.Use(middleware.Metrics(metrics, serviceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	paymentLimiter := middleware.NewRateLimiter(rate.Limit(float64(cfg.PaymentRatePerMinute)/60), cfg.PaymentRatePerMinute, 10*time.Minute)
	go paymentLimiter.RunCleanup(ctx)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})
	routes.RegisterOrderRoutes(r, orderController, middleware.Auth([]byte(cfg.JWTSecret)), middleware.RateLimit(paymentLimiter))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLogger.Info("Order service starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	notifier.Wait()
	if producer != nil {
		if err := producer.Close(); err != nil {
			zapLogger.Warn("Failed to close Kafka producer", zap.Error(err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := database.Close(db); err != nil {
		zapLogger.Warn("Failed to close database", zap.Error(err))
	}
	zapLogger.Info("Server exited")
}
