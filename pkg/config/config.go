package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration
type Config struct {
	LogLevel    string `json:"log_level" default:"info"`
	VenuesFile  string `json:"venues_file" default:"venues.yaml"`
	WatchVenues bool   `json:"watch_venues" default:"false"`

	Geofence GeofenceConfig `json:"geofence"`
	Beacon   BeaconConfig   `json:"beacon"`
	Engine   EngineConfig   `json:"engine"`
	MQTT     MQTTConfig     `json:"mqtt"`
}

// GeofenceConfig holds geofence registration defaults
type GeofenceConfig struct {
	RadiusMeters float64       `json:"radius_meters" default:"200"`
	Expiration   time.Duration `json:"expiration" default:"12h"`
	LoiterDelay  time.Duration `json:"loiter_delay" default:"5m"`
}

// BeaconConfig holds beacon scanning settings
type BeaconConfig struct {
	NearThresholdMeters float64 `json:"near_threshold_meters" default:"10"`
	// NetworkUUID is scanned for venues without their own beacon identity
	NetworkUUID string `json:"network_uuid"`
}

// EngineConfig holds presence engine settings
type EngineConfig struct {
	InboxSize int `json:"inbox_size" default:"256"`
}

// MQTTConfig holds presence publishing settings
type MQTTConfig struct {
	Enabled  bool   `json:"enabled" default:"false"`
	Broker   string `json:"broker" default:"tcp://localhost:1883"`
	ClientID string `json:"client_id" default:"venuesense"`
	Topic    string `json:"topic" default:"venuesense/presence"`
	QoS      uint8  `json:"qos" default:"1"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// ParsedNetworkUUID returns the configured beacon network, if any
func (c *Config) ParsedNetworkUUID() (*uuid.UUID, error) {
	if c.Beacon.NetworkUUID == "" {
		return nil, nil
	}
	id, err := uuid.Parse(c.Beacon.NetworkUUID)
	if err != nil {
		return nil, fmt.Errorf("beacon.network_uuid: %w", err)
	}
	return &id, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Geofence.RadiusMeters <= 0 {
		return fmt.Errorf("geofence.radius_meters must be positive")
	}
	if c.Geofence.Expiration <= 0 {
		return fmt.Errorf("geofence.expiration must be positive")
	}
	if c.Beacon.NearThresholdMeters <= 0 {
		return fmt.Errorf("beacon.near_threshold_meters must be positive")
	}
	if c.Engine.InboxSize <= 0 {
		return fmt.Errorf("engine.inbox_size must be positive")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if _, err := c.ParsedNetworkUUID(); err != nil {
		return err
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
