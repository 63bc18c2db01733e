package database

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/studyrunner/pkg/common/config"
	"github.com/synaptica-ai/studyrunner/pkg/common/logger"
)

// RedisOptions builds the client options for the device key-value store and
// the reminder outbox.
func RedisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:        net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.ConnectTimeout,
	}
}

// OpenRedis returns a client only once the server has answered a ping. The
// study service keeps the task list there, so it cannot start without it.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts := RedisOptions(cfg)
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"addr": opts.Addr,
		"db":   opts.DB,
	}).Info("Connected to Redis")
	return client, nil
}
