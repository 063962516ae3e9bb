package database

import (
	"context"
	"log"
	"time"

	"go-reports/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
)

// NewRedis creates the shared Redis client used by the report cache
// and the asynq job queue.
func NewRedis(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Println("Connected to Redis!")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Println("Closing Redis connection...")
			return client.Close()
		},
	})

	return client, nil
}
