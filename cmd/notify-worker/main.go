package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/shifohub/patient-comms/cmd/mainconfig"
	appconfig "github.com/shifohub/patient-comms/internal/config"
	"github.com/shifohub/patient-comms/internal/notify"
	"github.com/shifohub/patient-comms/internal/outbound"
	"github.com/shifohub/patient-comms/internal/patients"
	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/internal/worker/delivery"
	"github.com/shifohub/patient-comms/internal/worker/drain"
	"github.com/shifohub/patient-comms/internal/worker/reminder"
	"github.com/shifohub/patient-comms/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TelegramBotToken == "" || cfg.OutboundQueueURL == "" {
		logger.Error("notify worker requires TELEGRAM_BOT_TOKEN and OUTBOUND_QUEUE_URL")
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	tgClient, err := telegram.New(telegram.Config{
		BaseURL:  cfg.TelegramBaseURL,
		BotToken: cfg.TelegramBotToken,
		Logger:   logger.Logger,
	})
	if err != nil {
		logger.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	patientStore := patients.NewStore(dynamoClient, cfg.PatientsTable, logger)
	outboundStore := outbound.NewStore(dynamoClient, cfg.OutboundTable, logger)

	var media outbound.MediaResolver
	if cfg.MediaBucket != "" {
		media = outbound.NewS3MediaResolver(s3.NewFromConfig(awsCfg), cfg.MediaBucket)
	}

	executor := outbound.NewExecutor(outbound.ExecutorConfig{
		Chat:    tgClient,
		Store:   outboundStore,
		Media:   media,
		ChatLog: patientStore,
		Logger:  logger,
	})

	queue := outbound.NewDeliveryQueue(sqs.NewFromConfig(awsCfg), cfg.OutboundQueueURL)
	outboundService := outbound.NewService(outboundStore, queue, logger)

	sesSender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.AlertEmailFrom,
		FromName:  cfg.AlertFromName,
	}, logger)
	alerter := notify.NewAlerter(sesSender, cfg.AlertEmailTo, logger)

	location, err := time.LoadLocation(cfg.ReminderTimezone)
	if err != nil {
		logger.Warn("invalid timezone, using UTC", "timezone", cfg.ReminderTimezone)
		location = time.UTC
	}

	deliveryWorker := delivery.NewWorker(queue, outboundStore, executor, logger)
	drainConsumer := drain.NewConsumer(outboundStore, executor, alerter, logger).
		WithInterval(cfg.DrainInterval)
	reminderProducer := reminder.NewProducer(patientStore, outboundService, cfg.ReminderHour, location, logger)

	go deliveryWorker.Run(ctx)
	go drainConsumer.Run(ctx)
	go reminderProducer.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("notify worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
