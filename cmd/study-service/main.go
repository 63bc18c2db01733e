package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/api"
	"github.com/synaptica-ai/studyrunner/pkg/common/clock"
	"github.com/synaptica-ai/studyrunner/pkg/common/config"
	"github.com/synaptica-ai/studyrunner/pkg/common/database"
	"github.com/synaptica-ai/studyrunner/pkg/common/httpclient"
	"github.com/synaptica-ai/studyrunner/pkg/common/kafka"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
	"github.com/synaptica-ai/studyrunner/pkg/enrol"
	"github.com/synaptica-ai/studyrunner/pkg/media"
	"github.com/synaptica-ai/studyrunner/pkg/notify"
	"github.com/synaptica-ai/studyrunner/pkg/store"
	"github.com/synaptica-ai/studyrunner/pkg/tasks"
	"github.com/synaptica-ai/studyrunner/pkg/upload"
)

func main() {
	logger.Init()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := database.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	kv := store.NewRedisStore(redisClient, cfg.KVNamespace)
	taskStore := tasks.NewStore(kv)
	clk := clock.Real{}

	reminders := notify.NewRedisReminders(redisClient, cfg.KVNamespace)
	scheduler := notify.NewScheduler(kv, taskStore, reminders, clk, cfg.NotificationLimit)
	scheduler.Attach()

	responsesProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.ResponsesTopic)
	defer responsesProducer.Close()
	logsProducer := kafka.NewProducer(cfg.KafkaBrokers, cfg.LogsTopic)
	defer logsProducer.Close()
	uploader := upload.NewClient(responsesProducer, logsProducer, kv)

	studyClient := httpclient.NewAuthenticated(ctx, cfg.StudyDownloadTimeout, httpclient.OAuth2Credentials{
		TokenURL:     cfg.StudyOAuthTokenURL,
		ClientID:     cfg.StudyOAuthClientID,
		ClientSecret: cfg.StudyOAuthSecret,
	})
	mediaCache := media.NewCache(studyClient, cfg.MediaDir)

	enrolment := enrol.NewService(kv, taskStore, scheduler, uploader, mediaCache, enrol.Options{
		Client:  studyClient,
		BaseURL: cfg.StudyBaseURL,
		Clock:   clk,
	})
	if _, err := enrolment.Participant(ctx); err != nil {
		logger.Log.WithError(err).Fatal("failed to load participant identity")
	}

	dispatcher := notify.NewDispatcher(reminders, notify.LogDelivery, clk, 30*time.Second)
	go dispatcher.Run(ctx)

	server := api.NewServer(enrolment, taskStore, uploader, clk, api.Config{
		TickInterval:   cfg.PVTTickInterval,
		MaxRequestBody: cfg.MaxRequestBody,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:         address,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Study service listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start study service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down study service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Study service forced to shutdown")
	}
	uploader.Flush(shutdownCtx)
	logger.Log.Info("Study service stopped")
}
