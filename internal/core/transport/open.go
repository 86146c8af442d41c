package transport

import (
	"context"
	"fmt"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/transport/inmem"
	"github.com/dep2p/go-dds/internal/core/transport/redis"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
)

// Open 按配置的后端创建传输
//
// inmem 后端接入进程级共享 Hub。
func Open(ctx context.Context, cfg Config) (pkgif.Transport, error) {
	switch cfg.Backend {
	case config.TransportInmem:
		return inmem.Shared().Transport(), nil
	case config.TransportRedis:
		return redis.Dial(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
