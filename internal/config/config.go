// Package config loads tugsessiond's runtime configuration from flags,
// environment variables, and defaults via viper (§ ambient stack).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the Session Engine daemon.
type Config struct {
	ListenAddr string

	PostgresDSN string
	RedisAddr   string
	RedisPassword string
	RedisDB     int

	JWTSigningKey string

	WSRateLimitPerSecond int
	IdleHibernateTimeout time.Duration
	IdleSweepInterval    time.Duration

	LogLevel  string
	LogPretty bool
}

// Load reads configuration from viper, which merges flag values, env vars
// (TUGQUIZ_ prefix), and the flag defaults registered in package cmd.
func Load() Config {
	return Config{
		ListenAddr: viper.GetString("listen_addr"),

		PostgresDSN:   viper.GetString("postgres_dsn"),
		RedisAddr:     viper.GetString("redis_addr"),
		RedisPassword: viper.GetString("redis_password"),
		RedisDB:       viper.GetInt("redis_db"),

		JWTSigningKey: viper.GetString("jwt_signing_key"),

		WSRateLimitPerSecond: viper.GetInt("ws_rate_limit_per_second"),
		IdleHibernateTimeout: viper.GetDuration("idle_hibernate_timeout"),
		IdleSweepInterval:    viper.GetDuration("idle_sweep_interval"),

		LogLevel:  viper.GetString("log_level"),
		LogPretty: viper.GetBool("log_pretty"),
	}
}

// BindEnv wires TUGQUIZ_-prefixed environment variables onto viper so
// they take precedence over defaults but not over explicit flags.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("tugquiz")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}
