package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Pairing    PairingConfig    `mapstructure:"pairing"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Onboarding OnboardingConfig `mapstructure:"onboarding"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Settings   SettingsConfig   `mapstructure:"settings"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// StorageConfig selects the backend for devices and locations.
// Driver is "memory" or "postgres".
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SeedDevices bool   `mapstructure:"seed_devices"`
}

type PairingConfig struct {
	// Mode is "simulator" or "mqtt"
	Mode           string        `mapstructure:"mode"`
	Latency        time.Duration `mapstructure:"latency"`
	ScanLatency    time.Duration `mapstructure:"scan_latency"`
	ScanResult     string        `mapstructure:"scan_result"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RejectIDs      []string      `mapstructure:"reject_ids"`
	RejectPrefix   string        `mapstructure:"reject_prefix"`
}

type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"connect_timeout"`
}

type OnboardingConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// CatalogConfig points at an optional YAML seed for the location catalog.
// The built-in floors are used when SeedFile is empty.
type CatalogConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type SettingsConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	SetDefaults(v)

	v.SetEnvPrefix("ECO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var config Config
	// Defaults are static; a decode failure here is a programming error.
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &config
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "ecoshare")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.seed_devices", true)

	v.SetDefault("pairing.mode", "simulator")
	v.SetDefault("pairing.latency", "2s")
	v.SetDefault("pairing.scan_latency", "1s")
	v.SetDefault("pairing.scan_result", "DEVICE_123456")
	v.SetDefault("pairing.attempt_timeout", "5s")
	v.SetDefault("pairing.max_attempts", 3)
	v.SetDefault("pairing.reject_prefix", "OFFLINE_")

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "ecoshare-core")
	v.SetDefault("mqtt.topic_prefix", "ecoshare/devices")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.connect_timeout", "5s")

	v.SetDefault("onboarding.session_ttl", "30m")
	v.SetDefault("onboarding.sweep_interval", "1m")

	v.SetDefault("settings.path", "data/settings.yaml")
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid storage.driver %q (expected memory or postgres)", c.Storage.Driver)
	}

	switch c.Pairing.Mode {
	case "simulator", "mqtt":
	default:
		return fmt.Errorf("invalid pairing.mode %q (expected simulator or mqtt)", c.Pairing.Mode)
	}

	if c.Pairing.MaxAttempts < 1 {
		return fmt.Errorf("pairing.max_attempts must be at least 1")
	}

	if c.Pairing.AttemptTimeout > 0 && c.Pairing.AttemptTimeout <= c.Pairing.Latency {
		return fmt.Errorf("pairing.attempt_timeout (%s) must exceed pairing.latency (%s)",
			c.Pairing.AttemptTimeout, c.Pairing.Latency)
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}
