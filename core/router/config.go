package router

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// DefaultWorkers is the size of a router created from an empty environment.
const DefaultWorkers = 1024

// Config is the environment-driven router configuration used by the global
// router and the command line tools.
type Config struct {
	Workers int    `env:"ERT_WORKERS, default=1024"`
	Seed    string `env:"ERT_SEED"`
	ID      string `env:"ERT_ROUTER_ID"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig(ctx context.Context) (Config, error) {
	return LoadConfigFrom(ctx, envconfig.OsLookuper())
}

// LoadConfigFrom reads Config from l.
func LoadConfigFrom(ctx context.Context, l envconfig.Lookuper) (cfg Config, err error) {
	if err = envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return cfg, fmt.Errorf("load router config: %w", err)
	}
	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("load router config: %w: %d", ErrNoWorkers, cfg.Workers)
	}
	return cfg, nil
}

// Options converts the configuration into router options.
func (c Config) Options() []Option {
	return []Option{WithID(c.ID), WithSeed(c.Seed)}
}
