package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/nestedjar/jar"
)

const envPrefix = "NESTEDJAR"

// config holds the settings shared by every command. Values come from
// flags, NESTEDJAR_* environment variables and an optional config file, in
// that order of precedence.
type config struct {
	Debug       bool
	Release     int
	Workers     int
	BlockSize   int
	CacheBlocks int
	HTTPTimeout time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("debug", false)
	v.SetDefault("release", jar.BaseVersion)
	v.SetDefault("workers", 0)
	v.SetDefault("block-size", 64<<10)
	v.SetDefault("cache-blocks", 64)
	v.SetDefault("http-timeout", 30*time.Second)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the optional config file and resolves every setting.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, path string) (config, error) {
	if err := v.BindPFlags(flags); err != nil {
		return config{}, fmt.Errorf("bind flags: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := config{
		Debug:       v.GetBool("debug"),
		Release:     v.GetInt("release"),
		Workers:     v.GetInt("workers"),
		BlockSize:   v.GetInt("block-size"),
		CacheBlocks: v.GetInt("cache-blocks"),
		HTTPTimeout: v.GetDuration("http-timeout"),
	}
	if cfg.Release < jar.BaseVersion {
		return config{}, fmt.Errorf("release %d is below %d", cfg.Release, jar.BaseVersion)
	}
	if cfg.BlockSize <= 0 || cfg.CacheBlocks <= 0 {
		return config{}, errors.New("block-size and cache-blocks must be positive")
	}
	return cfg, nil
}
