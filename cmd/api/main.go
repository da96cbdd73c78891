package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shifohub/patient-comms/cmd/mainconfig"
	"github.com/shifohub/patient-comms/internal/api/router"
	"github.com/shifohub/patient-comms/internal/bot"
	appconfig "github.com/shifohub/patient-comms/internal/config"
	"github.com/shifohub/patient-comms/internal/observability/metrics"
	"github.com/shifohub/patient-comms/internal/otp"
	"github.com/shifohub/patient-comms/internal/patients"
	"github.com/shifohub/patient-comms/internal/profiles"
	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting patient-comms API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	tgClient, err := telegram.New(telegram.Config{
		BaseURL:       cfg.TelegramBaseURL,
		BotToken:      cfg.TelegramBotToken,
		WebhookSecret: cfg.TelegramWebhookSecret,
		Logger:        logger.Logger,
	})
	if err != nil {
		logger.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	patientStore := patients.NewStore(dynamoClient, cfg.PatientsTable, logger)
	profileStore := profiles.NewStore(dynamoClient, cfg.ProfilesTable, logger)
	otpStore := otp.NewStore(dynamoClient, cfg.OTPTable)

	redisClient := mainconfig.NewRedisClient(cfg)
	sessions := bot.NewSessionStore(redisClient, cfg.SessionTTL)

	registry := prometheus.NewRegistry()
	commsMetrics := metrics.NewCommsMetrics(registry)

	location, err := time.LoadLocation(cfg.ReminderTimezone)
	if err != nil {
		logger.Warn("invalid timezone, using UTC", "timezone", cfg.ReminderTimezone)
		location = time.UTC
	}

	resolver := patients.NewResolver(patientStore, logger)
	doctors := profiles.NewDoctorRouter(profileStore, cfg.DefaultDoctorContact, logger)

	botHandler := bot.NewHandler(bot.HandlerConfig{
		Chat:     tgClient,
		Filter:   bot.NewAccessFilter(cfg.AllowedChatIDs(), tgClient, sessions, logger),
		Sessions: sessions,
		Resolver: resolver,
		ChatLog:  patientStore,
		Doctors:  doctors,
		Location: location,
		Metrics:  commsMetrics,
		Logger:   logger,
	})
	webhook := bot.NewWebhook(botHandler, tgClient, commsMetrics, logger)

	otpService := otp.NewService(otp.ServiceConfig{
		Resolver:   otp.NewStoreResolver(profileStore, patientStore),
		Challenges: otpStore,
		Chat:       tgClient,
		Minter:     otp.NewJWTMinter(cfg.AuthTokenSecret, cfg.AuthTokenTTL),
		CodeTTL:    cfg.OTPCodeTTL,
		Logger:     logger,
	})

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		OTPHandler:     otp.NewHandler(otpService, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	_ = redisClient.Close()

	logger.Info("server stopped")
}
