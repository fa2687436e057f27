package main

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"marketlive-ws/internal/auth"
	"marketlive-ws/internal/broker"
	"marketlive-ws/internal/chat"
	"marketlive-ws/internal/config"
	"marketlive-ws/internal/delivery"
	"marketlive-ws/internal/infrastructure/database"
	"marketlive-ws/internal/infrastructure/kafka"
	"marketlive-ws/internal/infrastructure/redis"
	"marketlive-ws/internal/live"
	"marketlive-ws/internal/logging"
	"marketlive-ws/internal/notification"
	"marketlive-ws/internal/presence"
)

func main() {
	// Recovery global untuk mencegah crash aplikasi
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Application recovered from panic")
			os.Exit(1)
		}
	}()

	_ = godotenv.Load()

	cfg := config.LoadConfig()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	logging.Info().
		Str("environment", cfg.Environment).
		Str("port", cfg.Port).
		Str("redis", cfg.RedisAddr()).
		Strs("kafka_brokers", cfg.KafkaBrokers).
		Str("cors_origins", cfg.GetCORSOrigins()).
		Msg("Starting Marketlive realtime server")

	store, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		logging.Fatal().Err(err).Str("dsn", cfg.DatabaseDSN).Msg("Failed to open database")
	}

	redisClient := redis.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.TypingTTL)
	ctx := context.Background()
	if err := redisClient.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("Redis connection failed; typing and connection counts degrade")
	} else {
		logging.Info().Msg("Redis connection successful")
	}

	b := broker.New()
	verifier := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer)

	chatOpts := []chat.Option{
		chat.WithTypingStore(redisClient),
		chat.WithPageLimits(cfg.MessagePageSize, cfg.MessagePageMax),
	}
	notifyOpts := []notification.Option{notification.WithPageSize(cfg.NotificationPageSize)}

	var (
		kafkaProducer *kafka.KafkaProducer
		kafkaConsumer *kafka.KafkaConsumer
	)
	if cfg.KafkaEnabled() {
		kafkaProducer = kafka.NewKafkaProducer(cfg.KafkaBrokers)
		chatOpts = append(chatOpts, chat.WithEventSink(kafkaProducer))
		notifyOpts = append(notifyOpts, notification.WithEventSink(kafkaProducer))
	} else {
		logging.Info().Msg("KAFKA_BROKERS not set; domain event consumer and outbound mirror disabled")
	}

	chatService := chat.NewService(store, b, chatOpts...)
	notificationService := notification.NewService(store, b, notifyOpts...)
	liveRegistry := live.NewRegistry(store, b)
	tracker := presence.NewTracker(store, b, presence.WithConnectionCounter(redisClient))

	wsManager := delivery.NewWSManager(b, verifier, chatService, store, redisClient)
	server := delivery.NewServer(cfg, delivery.Services{
		Chat:          chatService,
		Notifications: notificationService,
		Live:          liveRegistry,
		Presence:      tracker,
	}, b, verifier, wsManager, map[string]delivery.HealthChecker{"redis": redisClient})

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.KafkaEnabled() {
		kafkaConsumer = kafka.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, kafka.DomainTopics, notificationService)
		if err := kafkaConsumer.Start(consumerCtx); err != nil {
			logging.Error().Err(err).Msg("Kafka consumer error")
		}
	}

	go func() {
		if err := server.Start(); err != nil {
			logging.Fatal().Err(err).Msg("HTTP server stopped")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				logging.Info().Msg("Graceful shutdown initiated...")
				err := server.Shutdown(ctx)
				b.Close()
				return err
			},
			"kafka": func(ctx context.Context) error {
				stopConsumer()
				if kafkaConsumer != nil {
					if err := kafkaConsumer.Close(); err != nil {
						return err
					}
				}
				if kafkaProducer != nil {
					return kafkaProducer.Close()
				}
				return nil
			},
		},
	)

	exitCode := <-wait

	if err := redisClient.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing Redis client")
	}
	if err := store.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}

	logging.Info().Int("exit_code", exitCode).Msg("Application exited")
	os.Exit(exitCode)
}
