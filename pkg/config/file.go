package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config but uses strings for durations to make TOML friendly.
type fileConfig struct {
	LogLevel    string `toml:"log_level"`
	VenuesFile  string `toml:"venues_file"`
	WatchVenues bool   `toml:"watch_venues"`

	Geofence struct {
		RadiusMeters float64 `toml:"radius_meters"`
		Expiration   string  `toml:"expiration"`
		LoiterDelay  string  `toml:"loiter_delay"`
	} `toml:"geofence"`

	Beacon struct {
		NearThresholdMeters float64 `toml:"near_threshold_meters"`
		NetworkUUID         string  `toml:"network_uuid"`
	} `toml:"beacon"`

	Engine struct {
		InboxSize int `toml:"inbox_size"`
	} `toml:"engine"`

	MQTT struct {
		Enabled  bool   `toml:"enabled"`
		Broker   string `toml:"broker"`
		ClientID string `toml:"client_id"`
		Topic    string `toml:"topic"`
		QoS      uint8  `toml:"qos"`
		Username string `toml:"username"`
		Password string `toml:"password"`
	} `toml:"mqtt"`
}

// LoadFile reads a TOML config file over the defaults. Keys absent from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	fc := toFile(cfg)
	if err := toml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := fromFile(fc, cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func toFile(c *Config) fileConfig {
	var fc fileConfig
	fc.LogLevel = c.LogLevel
	fc.VenuesFile = c.VenuesFile
	fc.WatchVenues = c.WatchVenues
	fc.Geofence.RadiusMeters = c.Geofence.RadiusMeters
	fc.Geofence.Expiration = c.Geofence.Expiration.String()
	fc.Geofence.LoiterDelay = c.Geofence.LoiterDelay.String()
	fc.Beacon.NearThresholdMeters = c.Beacon.NearThresholdMeters
	fc.Beacon.NetworkUUID = c.Beacon.NetworkUUID
	fc.Engine.InboxSize = c.Engine.InboxSize
	fc.MQTT.Enabled = c.MQTT.Enabled
	fc.MQTT.Broker = c.MQTT.Broker
	fc.MQTT.ClientID = c.MQTT.ClientID
	fc.MQTT.Topic = c.MQTT.Topic
	fc.MQTT.QoS = c.MQTT.QoS
	fc.MQTT.Username = c.MQTT.Username
	fc.MQTT.Password = c.MQTT.Password
	return fc
}

func fromFile(fc fileConfig, c *Config) error {
	expiration, err := time.ParseDuration(fc.Geofence.Expiration)
	if err != nil {
		return fmt.Errorf("geofence.expiration: %w", err)
	}
	loiter, err := time.ParseDuration(fc.Geofence.LoiterDelay)
	if err != nil {
		return fmt.Errorf("geofence.loiter_delay: %w", err)
	}

	c.LogLevel = fc.LogLevel
	c.VenuesFile = fc.VenuesFile
	c.WatchVenues = fc.WatchVenues
	c.Geofence = GeofenceConfig{
		RadiusMeters: fc.Geofence.RadiusMeters,
		Expiration:   expiration,
		LoiterDelay:  loiter,
	}
	c.Beacon = BeaconConfig{
		NearThresholdMeters: fc.Beacon.NearThresholdMeters,
		NetworkUUID:         fc.Beacon.NetworkUUID,
	}
	c.Engine = EngineConfig{InboxSize: fc.Engine.InboxSize}
	c.MQTT = MQTTConfig{
		Enabled:  fc.MQTT.Enabled,
		Broker:   fc.MQTT.Broker,
		ClientID: fc.MQTT.ClientID,
		Topic:    fc.MQTT.Topic,
		QoS:      fc.MQTT.QoS,
		Username: fc.MQTT.Username,
		Password: fc.MQTT.Password,
	}
	return nil
}
