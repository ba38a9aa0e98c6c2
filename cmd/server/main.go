package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecodeli/delivery-tracking/internal/api"
	"github.com/ecodeli/delivery-tracking/internal/core/ports"
	"github.com/ecodeli/delivery-tracking/internal/core/service"
	"github.com/ecodeli/delivery-tracking/internal/infrastructure/config"
	mongodb "github.com/ecodeli/delivery-tracking/internal/infrastructure/db/mongo"
	redisdb "github.com/ecodeli/delivery-tracking/internal/infrastructure/db/redis"
	"github.com/ecodeli/delivery-tracking/internal/infrastructure/kafka"
	"github.com/ecodeli/delivery-tracking/internal/infrastructure/queue"
	"github.com/ecodeli/delivery-tracking/internal/stream"
	"github.com/ecodeli/delivery-tracking/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Env:    cfg.Env,
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- MongoDB ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb connection failed")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("mongodb disconnect")
		}
	}()

	// --- Redis ---
	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close")
		}
	}()

	// --- Kafka firehose (optional) ---
	var sink ports.EventSink
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := producer.Close(); err != nil {
				log.Error().Err(err).Msg("kafka producer close")
			}
		}()
		sink = producer
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).
			Msg("kafka event sink enabled")
	}

	// --- Tracking core ---
	hub := stream.NewHub(stream.Options{
		LogLimit:      cfg.Tracking.EventLogLimit,
		SessionBuffer: cfg.Tracking.SessionBuffer,
	}, log)

	trackingService := service.NewTrackingService(
		service.Config{
			NearRadiusM:    cfg.Tracking.NearRadiusM,
			ArrivedRadiusM: cfg.Tracking.ArrivedRadiusM,
			MaxClockSkew:   cfg.Tracking.MaxClockSkew,
			HistoryLimit:   cfg.Tracking.HistoryLimit,
			ETA: service.ETAConfig{
				DefaultSpeedKmh:      cfg.Tracking.DefaultSpeedKmh,
				MaxSpeedKmh:          cfg.Tracking.MaxSpeedKmh,
				SpeedWindow:          cfg.Tracking.SpeedWindow,
				ArrivalHysteresis:    cfg.Tracking.ETAHysteresis,
				ConfidenceHysteresis: cfg.Tracking.ETAConfidenceHysteresis,
			},
		},
		mongodb.NewDeliveryRepository(db),
		mongodb.NewPositionRepository(db),
		redisdb.NewLatestPositionCache(rdb),
		sink,
		hub,
		log,
	)

	// --- Batch ingestion workers ---
	dispatcher := queue.NewDispatcher(cfg.Tracking.BatchWorkers, trackingService, log)
	dispatcher.Start(ctx)

	// --- HTTP server ---
	e := api.NewRouter(trackingService, dispatcher, db, rdb, cfg.JWTSecret, log)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting tracking server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server start failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
