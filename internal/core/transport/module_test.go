package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/eventbus"
	"github.com/dep2p/go-dds/internal/core/participant"
)

func TestModule_Disabled(t *testing.T) {
	var (
		b   *Bridge
		cfg Config
	)
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		eventbus.Module(),
		participant.Module(),
		Module(),
		fx.Populate(&b, &cfg),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Nil(t, b)
	assert.False(t, cfg.Enabled())
}

func TestModule_Inmem(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Domain.ID = 3
	cfg.Transport.Backend = config.TransportInmem

	var b *Bridge
	app := fxtest.New(t,
		fx.Supply(cfg),
		eventbus.Module(),
		participant.Module(),
		Module(),
		fx.Populate(&b),
	)
	app.RequireStart()

	require.NotNil(t, b)
	assert.Equal(t, "dds/3/data", b.cfg.DataChannel())
	assert.True(t, b.started.Load())

	app.RequireStop()
	assert.True(t, b.closed.Load())
}

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Domain.ID = 9
	cfg.Transport.Backend = config.TransportRedis
	cfg.Transport.RedisAddr = "redis:6379"
	cfg.Discovery.AnnounceInterval = config.Duration(250 * time.Millisecond)

	c := ConfigFromUnified(cfg)
	assert.True(t, c.Enabled())
	assert.Equal(t, 9, c.Domain)
	assert.Equal(t, "redis:6379", c.RedisAddr)
	assert.Equal(t, 250*time.Millisecond, c.AnnounceInterval)
	assert.Equal(t, "dds/9/discovery", c.DiscoveryChannel())
	require.NoError(t, c.Validate())

	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))
}
