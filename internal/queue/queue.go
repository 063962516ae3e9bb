package queue

import (
	"context"

	"go-reports/internal/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
}

// NewClient provides the task producer, closed with the app.
func NewClient(lc fx.Lifecycle, cfg *config.Config) *asynq.Client {
	client := asynq.NewClient(redisOpt(cfg))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewInspector provides read access to queue and task state.
func NewInspector(cfg *config.Config) *asynq.Inspector {
	return asynq.NewInspector(redisOpt(cfg))
}

// NewServer provides the worker-side task consumer.
func NewServer(cfg *config.Config) *asynq.Server {
	concurrency := cfg.WorkerCount
	if concurrency <= 0 {
		concurrency = 4
	}
	return asynq.NewServer(redisOpt(cfg), asynq.Config{Concurrency: concurrency})
}
