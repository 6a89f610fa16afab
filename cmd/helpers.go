package cmd

import (
	"log"

	"github.com/Thanhpt21/chatsync-go/internal/config"
	"github.com/Thanhpt21/chatsync-go/internal/localstore"
)

// makeLocalStore picks the persistence backend from the loaded config:
// Redis when configured and reachable, the data-dir file otherwise.
func makeLocalStore(cfg config.Config) (localstore.Store, error) {
	if cfg.Redis != nil && cfg.Redis.URL != "" {
		rs := localstore.NewRedisStore(localstore.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, "default")
		if rs.Connected() {
			return rs, nil
		}
		log.Println("[CLI] Redis unavailable, falling back to file store")
	}
	return localstore.NewFileStore(cfg.DataDir)
}
