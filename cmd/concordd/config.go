// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/concordlib/concord/types"
)

// Config is the daemon configuration: a yaml file with CONCORD_* env
// overrides applied on top.
type Config struct {
	// Token is the user token. "${VAR}" references are expanded from
	// the environment so the secret can stay out of the file.
	Token string `yaml:"token"`

	// Listen is the admin HTTP address. Empty disables the server.
	Listen string `yaml:"listen"`

	LogLevel string `yaml:"log_level"`

	// DataDir enables badger state persistence when set.
	DataDir string `yaml:"data_dir"`

	// Status is the presence sent on identify (online, idle, dnd,
	// invisible).
	Status string `yaml:"status"`

	MessageCacheSize int `yaml:"message_cache_size"`
	MemberCap        int `yaml:"member_cap"`
}

func defaultConfig() Config {
	return Config{
		Listen:   ":8088",
		LogLevel: "info",
	}
}

// loadConfig reads the optional yaml file, layers env overrides, and
// validates the result.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.Token = os.ExpandEnv(cfg.Token)

	if cfg.Token == "" {
		return Config{}, fmt.Errorf("token is required (config file or CONCORD_TOKEN)")
	}
	if cfg.Status != "" {
		switch types.Status(cfg.Status) {
		case types.StatusOnline, types.StatusIdle, types.StatusDND, types.StatusInvisible:
		default:
			return Config{}, fmt.Errorf("invalid status %q", cfg.Status)
		}
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONCORD_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("CONCORD_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CONCORD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CONCORD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CONCORD_STATUS"); v != "" {
		cfg.Status = v
	}
	if v := os.Getenv("CONCORD_MESSAGE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MessageCacheSize = n
		}
	}
	if v := os.Getenv("CONCORD_MEMBER_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MemberCap = n
		}
	}
}
