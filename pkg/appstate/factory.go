package appstate

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jhjames1/peerchat/pkg/config"
)

// New creates the Store selected by cfg.Driver.
func New(cfg *config.AppStateConfig) (Store, error) {
	switch cfg.Driver {
	case config.AppStateDriverMemory, "":
		return NewMemoryStore(), nil
	case config.AppStateDriverRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis app state requires redis_addr")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword(),
			DB:       cfg.RedisDB,
		})
		return NewRedisStore(client, cfg.KeyPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown app state driver %q", cfg.Driver)
	}
}
