// Package config loads runtime configuration for the kvstore core.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the core subsystems.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Object  ObjectConfig  `mapstructure:"object"`
	Client  ClientConfig  `mapstructure:"client"`
	BgJobs  BgJobsConfig  `mapstructure:"bgjobs"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains reactor/listener level settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	SetSize      int           `mapstructure:"set_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxQueryBuf  int           `mapstructure:"max_query_buf"`
}

// ObjectConfig controls encoding-transition thresholds.
//
// Field names mirror the redis.conf knobs this behavior was distilled
// from (list-max-ziplist-*, set-max-intset-entries, etc.).
type ObjectConfig struct {
	SharedIntMax       int64 `mapstructure:"shared_int_max"`
	MaxMemorySet       bool  `mapstructure:"maxmemory_set"`
	ListMaxZiplistLen  int   `mapstructure:"list_max_ziplist_entries"`
	ListMaxZiplistSize int   `mapstructure:"list_max_ziplist_value"`
	SetMaxIntsetLen    int   `mapstructure:"set_max_intset_entries"`
	HashMaxZiplistLen  int   `mapstructure:"hash_max_ziplist_entries"`
	HashMaxZiplistSize int   `mapstructure:"hash_max_ziplist_value"`
	ZsetMaxZiplistLen  int   `mapstructure:"zset_max_ziplist_entries"`
	ZsetMaxZiplistSize int   `mapstructure:"zset_max_ziplist_value"`
}

// ClientConfig controls per-class output buffer limits.
type ClientConfig struct {
	NormalHardBytes int64         `mapstructure:"normal_hard_bytes"`
	NormalSoftBytes int64         `mapstructure:"normal_soft_bytes"`
	NormalSoftSecs  time.Duration `mapstructure:"normal_soft_seconds"`
	ReplicaHardBytes int64        `mapstructure:"replica_hard_bytes"`
	ReplicaSoftBytes int64        `mapstructure:"replica_soft_bytes"`
	ReplicaSoftSecs  time.Duration `mapstructure:"replica_soft_seconds"`
	PubSubHardBytes int64         `mapstructure:"pubsub_hard_bytes"`
	PubSubSoftBytes int64         `mapstructure:"pubsub_soft_bytes"`
	PubSubSoftSecs  time.Duration `mapstructure:"pubsub_soft_seconds"`
}

// BgJobsConfig holds background job settings. Types is not read by the
// server: it always starts workers for close_file and aof_fsync.
type BgJobsConfig struct {
	Types []string `mapstructure:"types"`
	// NATSURL, when set, also drains job submissions published to
	// kvstore.bgjob.<type> subjects alongside in-process Submit calls.
	NATSURL string `mapstructure:"nats_url"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Endpoint   string `mapstructure:"endpoint"`
}

// LoggingConfig controls zap logger construction.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from environment variables and an optional
// config file, applying defaults for anything unset.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 6380)
	v.SetDefault("server.set_size", 10000)
	v.SetDefault("server.read_timeout", 0)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_query_buf", 1024*1024*1024)

	v.SetDefault("object.shared_int_max", 9999)
	v.SetDefault("object.maxmemory_set", false)
	v.SetDefault("object.list_max_ziplist_entries", 128)
	v.SetDefault("object.list_max_ziplist_value", 64)
	v.SetDefault("object.set_max_intset_entries", 512)
	v.SetDefault("object.hash_max_ziplist_entries", 128)
	v.SetDefault("object.hash_max_ziplist_value", 64)
	v.SetDefault("object.zset_max_ziplist_entries", 128)
	v.SetDefault("object.zset_max_ziplist_value", 64)

	v.SetDefault("client.normal_hard_bytes", 0)
	v.SetDefault("client.normal_soft_bytes", 0)
	v.SetDefault("client.normal_soft_seconds", 0)
	v.SetDefault("client.replica_hard_bytes", 256<<20)
	v.SetDefault("client.replica_soft_bytes", 64<<20)
	v.SetDefault("client.replica_soft_seconds", 60*time.Second)
	v.SetDefault("client.pubsub_hard_bytes", 32<<20)
	v.SetDefault("client.pubsub_soft_bytes", 8<<20)
	v.SetDefault("client.pubsub_soft_seconds", 60*time.Second)

	v.SetDefault("bgjobs.types", []string{"close_file", "aof_fsync"})
	v.SetDefault("bgjobs.nats_url", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9121")
	v.SetDefault("metrics.endpoint", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetConfigName("kvstore")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("KVSTORE")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if cfg.Server.SetSize <= 0 {
		cfg.Server.SetSize = 10000
	}

	return cfg, nil
}
