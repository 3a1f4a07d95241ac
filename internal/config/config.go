// Configuration loading for the venue simulator: YAML files merged with
// VENUESIM_-prefixed environment variables, validated before use.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Aidin1998/venuesim/internal/market/directory"
)

// ServerConfig is the control-surface listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// MarketConfig declares one simulated market to start at boot.
type MarketConfig struct {
	Name          string                    `mapstructure:"name" validate:"required"`
	Type          string                    `mapstructure:"type" validate:"required,oneof=equity derivatives"`
	SweepInterval time.Duration             `mapstructure:"sweep_interval"`
	Parties       []directory.PartyRecord   `mapstructure:"parties" validate:"required,dive"`
	OrderEntry    []directory.AccountRecord `mapstructure:"order_entry" validate:"required,dive"`
	DropCopy      []directory.AccountRecord `mapstructure:"drop_copy" validate:"dive"`
	PostTrade     []directory.AccountRecord `mapstructure:"post_trade" validate:"dive"`

	// InstrumentFile points at the CSV reference-data export. Optional; mass
	// cancel by segment or underlying needs it.
	InstrumentFile string `mapstructure:"instrument_file"`
}

// Config is the full process configuration.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Server   ServerConfig   `mapstructure:"server"`
	Markets  []MarketConfig `mapstructure:"markets" validate:"dive"`
}

// Load reads configuration from the given paths (first existing wins last,
// later files override earlier ones) and the environment.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VENUESIM")

	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")

	if len(paths) == 0 {
		paths = []string{"./config.yaml", "./configs/config.yaml", "/etc/venuesim/config.yaml"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
