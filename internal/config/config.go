package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Kafka       KafkaConfig   `mapstructure:"kafka"`
	Engine      EngineConfig  `mapstructure:"engine"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int  `mapstructure:"http_port"`
	ReadTimeout  int  `mapstructure:"read_timeout"`
	WriteTimeout int  `mapstructure:"write_timeout"`
	IdleTimeout  int  `mapstructure:"idle_timeout"`
	Debug        bool `mapstructure:"debug"`
}

// KafkaConfig holds the event intake configuration. Heartbeats and incident
// reports arrive over these topics and are merely recorded; the engine
// implements no federation transport of its own.
type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	HeartbeatsTopic string   `mapstructure:"heartbeats_topic"`
	IncidentsTopic  string   `mapstructure:"incidents_topic"`
}

// EngineConfig holds trust engine specific configuration.
type EngineConfig struct {
	RecalculationInterval time.Duration `mapstructure:"recalculation_interval"`
	MaxPathHops           int           `mapstructure:"max_path_hops"`
	InfluenceLimit        int           `mapstructure:"influence_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/trust-engine")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TRUST_ENGINE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.http_port", 8085)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.debug", false)

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "trust-engine")
	viper.SetDefault("kafka.heartbeats_topic", "federation.heartbeats")
	viper.SetDefault("kafka.incidents_topic", "federation.incidents")

	viper.SetDefault("engine.recalculation_interval", "1h")
	viper.SetDefault("engine.max_path_hops", 4)
	viper.SetDefault("engine.influence_limit", 100)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func validateConfig(config *Config) error {
	if config.Server.HTTPPort <= 0 || config.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", config.Server.HTTPPort)
	}

	if config.Kafka.Enabled {
		if len(config.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if config.Kafka.GroupID == "" {
			return fmt.Errorf("kafka group id is required when kafka is enabled")
		}
	}

	if config.Engine.RecalculationInterval <= 0 {
		return fmt.Errorf("recalculation_interval must be positive")
	}

	if config.Engine.MaxPathHops <= 0 {
		return fmt.Errorf("max_path_hops must be positive")
	}

	if config.Engine.InfluenceLimit <= 0 {
		return fmt.Errorf("influence_limit must be positive")
	}

	return nil
}
