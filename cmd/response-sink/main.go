package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/studyrunner/pkg/api/middleware"
	"github.com/synaptica-ai/studyrunner/pkg/common/config"
	"github.com/synaptica-ai/studyrunner/pkg/common/database"
	"github.com/synaptica-ai/studyrunner/pkg/common/kafka"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/observability/metrics"
	"github.com/synaptica-ai/studyrunner/pkg/responses"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.OpenPostgres(context.Background(), cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	repo := responses.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate response tables")
	}
	service := responses.NewService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, topic := range []string{cfg.ResponsesTopic, cfg.LogsTopic} {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, topic, cfg.KafkaGroupID)
		defer consumer.Close()

		wg.Add(1)
		go func(topic string, consumer *kafka.Consumer) {
			defer wg.Done()
			logger.Log.WithField("topic", topic).Info("Consuming upload events")
			if err := consumer.Consume(ctx, service.HandleEvent); err != nil && err != context.Canceled {
				logger.Log.WithError(err).WithField("topic", topic).Error("Consumer stopped")
			}
		}(topic, consumer)
	}

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	responses.NewHandler(service).Register(v1)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.SinkPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Response sink listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start response sink")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down response sink...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Response sink forced to shutdown")
	}
	logger.Log.Info("Response sink stopped")
}
