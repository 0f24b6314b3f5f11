package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/saamerm/particle/pkg/dotdir"
)

// EnvPrefix is the prefix of environment variables read by InitViper.
const EnvPrefix = "PARTICLE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PARTICLE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PARTICLE_CLOUD_API_URL, PARTICLE_WORKER_COUNT, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Cloud
	v.SetDefault("cloud.api_url", d.Cloud.APIURL)
	v.SetDefault("cloud.client_id", d.Cloud.ClientID)
	v.SetDefault("cloud.client_secret", d.Cloud.ClientSecret)
	v.SetDefault("cloud.app_name", d.Cloud.AppName)

	// Stream
	v.SetDefault("stream.prefix", d.Stream.Prefix)
	v.SetDefault("stream.reconnect_delay", d.Stream.ReconnectDelay)

	// Forward
	v.SetDefault("forward.kafka_brokers", d.Forward.KafkaBrokers)
	v.SetDefault("forward.kafka_topic", d.Forward.KafkaTopic)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Worker
	v.SetDefault("worker.count", d.Worker.Count)
	v.SetDefault("worker.queue_size", d.Worker.QueueSize)
}
