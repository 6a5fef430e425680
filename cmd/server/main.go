package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pharmacy-api/config"
	"pharmacy-api/internal/api"
	"pharmacy-api/internal/broker"
	"pharmacy-api/internal/redisclient"
	"pharmacy-api/internal/service"
	"pharmacy-api/internal/store"
	"pharmacy-api/internal/util"
	"pharmacy-api/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting pharmacy api", zap.String("env", cfg.Server.Env), zap.String("store", cfg.Store.Driver))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn("Error closing store", zap.Error(err))
		}
	}()
	logger.Info("Store connected", zap.Bool("transactions", st.SupportsTransactions()))

	var idempotency service.IdempotencyStore
	if cfg.Redis.Enabled() {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Business.IdempotencyTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		idempotency = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var events service.EventPublisher
	var stockWorker *worker.StockAlertWorker
	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		stockWorker = worker.NewStockAlertWorker(consumer, st, cfg.Business.LowStockThreshold)
		logger.Info("Kafka initialized", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.TopicOrder))
	}

	inventoryClient := service.NewInventoryClient(st)
	productService := service.NewProductService(st)
	orderService := service.NewOrderService(st, inventoryClient, idempotency, events)

	if err := api.EnsureUploadDir(cfg.Upload.Dir); err != nil {
		logger.Fatal("Failed to prepare upload dir", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(productService, orderService, st, cfg.Upload)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           api.WithCORS(router, cfg.Server.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if stockWorker != nil {
		g.Go(func() error {
			if err := stockWorker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Stock alert worker stopped", zap.Error(err))
			}
			return nil
		})
	}

	if cfg.Heartbeat.URL != "" {
		heartbeat, err := worker.NewHeartbeat(cfg.Heartbeat.URL, cfg.Heartbeat.Interval)
		if err != nil {
			logger.Fatal("Failed to create heartbeat", zap.Error(err))
		}
		if err := heartbeat.Start(); err != nil {
			logger.Fatal("Failed to start heartbeat", zap.Error(err))
		}
		defer func() {
			if err := heartbeat.Stop(); err != nil {
				logger.Warn("Error stopping heartbeat", zap.Error(err))
			}
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		if stockWorker != nil {
			if err := stockWorker.Stop(); err != nil {
				logger.Warn("Error stopping stock alert worker", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		return
	}
	logger.Info("Server exited")
}
