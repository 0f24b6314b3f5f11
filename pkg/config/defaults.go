package config

const (
	defaultAPIURL       = "https://api.particle.io"
	defaultClientID     = "particle"
	defaultClientSecret = "particle"
	defaultAppName      = "particle-cli"

	defaultReconnectDelay = "5s"

	defaultKafkaTopic = "particle.events"

	defaultWorkerCount     = 3
	defaultWorkerQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Cloud: CloudConfig{
			APIURL:       defaultAPIURL,
			ClientID:     defaultClientID,
			ClientSecret: defaultClientSecret,
			AppName:      defaultAppName,
		},
		Stream: StreamConfig{
			ReconnectDelay: defaultReconnectDelay,
		},
		Forward: ForwardConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Worker: WorkerConfig{
			Count:     defaultWorkerCount,
			QueueSize: defaultWorkerQueueSize,
		},
	}
}
