package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// cannot drift between commands.
type Flag struct {
	// Name is the long flag name (e.g. "api-url").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "cloud.api_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIURL         = "api-url"
	FlagReconnectDelay = "reconnect-delay"
	FlagKafkaBrokers   = "kafka-brokers"
	FlagKafkaTopic     = "kafka-topic"
	FlagSQLite         = "sqlite"
	FlagPostgres       = "postgres"
	FlagWorkers        = "workers"
	FlagQueueSize      = "queue-size"
)

// Flags is the registry shared by every command.
var Flags = FlagSet{
	FlagAPIURL: {
		Name:        "api-url",
		ViperKey:    "cloud.api_url",
		Description: "Particle cloud API url",
	},
	FlagReconnectDelay: {
		Name:        "reconnect-delay",
		ViperKey:    "stream.reconnect_delay",
		Description: "Delay before reconnecting a closed stream (e.g. 5s)",
	},
	FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "forward.kafka_brokers",
		Description: "Comma separated Kafka brokers to forward events to",
	},
	FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "forward.kafka_topic",
		Description: "Kafka topic for forwarded events",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to a SQLite event log",
	},
	FlagPostgres: {
		Name:        "postgres",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string for the event log",
	},
	FlagWorkers: {
		Name:        "workers",
		ViperKey:    "worker.count",
		Description: "Number of workers storing and forwarding events",
	},
	FlagQueueSize: {
		Name:        "queue-size",
		ViperKey:    "worker.queue_size",
		Description: "Capacity of the event queue",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
