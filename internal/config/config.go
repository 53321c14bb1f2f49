// Package config manages the LanLink configuration. It handles loading,
// validating, and saving settings from YAML files and provides defaults for
// every field. The configuration is a plain value owned by its caller; the
// coordinator receives it at construction and replaces it wholesale on
// UpdateConfig.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that round-trips as a human-readable string
// ("10s", "1h") in YAML and JSON. Bare integers are accepted as seconds in
// YAML and as nanoseconds in JSON for compatibility with generic encoders.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if dur, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(dur)
		return nil
	}
	if n, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration: %q", value.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid duration: %s", data)
		}
		*d = Duration(n)
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration: %q", raw)
	}
	*d = Duration(dur)
	return nil
}

// HotspotSecurity is the access-point security mode.
type HotspotSecurity string

const (
	SecurityOpen HotspotSecurity = "open"
	SecurityWEP  HotspotSecurity = "wep"
	SecurityWPA  HotspotSecurity = "wpa"
	SecurityWPA2 HotspotSecurity = "wpa2"
	SecurityWPA3 HotspotSecurity = "wpa3"
)

// Valid reports whether the security mode is one of the known values.
func (s HotspotSecurity) Valid() bool {
	switch s {
	case SecurityOpen, SecurityWEP, SecurityWPA, SecurityWPA2, SecurityWPA3:
		return true
	}
	return false
}

// NetworkConfig holds the core networking settings. It is an immutable value
// replaced wholesale by the coordinator's UpdateConfig.
type NetworkConfig struct {
	DefaultPort              int           `yaml:"defaultPort" json:"defaultPort"`
	EnableAutoDiscovery      bool          `yaml:"enableAutoDiscovery" json:"enableAutoDiscovery"`
	EnableQRCode             bool          `yaml:"enableQrCode" json:"enableQrCode"`
	EnablePasswordProtection bool          `yaml:"enablePasswordProtection" json:"enablePasswordProtection"`
	SessionTimeout           Duration      `yaml:"sessionTimeout" json:"sessionTimeout"`
	MaxConcurrentTransfers   int           `yaml:"maxConcurrentTransfers" json:"maxConcurrentTransfers"`
	MaxFileSize              int64         `yaml:"maxFileSize" json:"maxFileSize"`
	ScanTimeout              Duration      `yaml:"scanTimeout" json:"scanTimeout"`
	MaxSavedNetworks         int           `yaml:"maxSavedNetworks" json:"maxSavedNetworks"`
}

// HotspotConfig holds the device-hosted access point settings.
type HotspotConfig struct {
	SSID       string          `yaml:"ssid" json:"ssid"`
	Password   string          `yaml:"password" json:"password,omitempty"`
	Security   HotspotSecurity `yaml:"security" json:"security"`
	MaxClients int             `yaml:"maxClients" json:"maxClients"`
	Timeout    Duration        `yaml:"timeout" json:"timeout"`
}

// Config is the full LanLink configuration file.
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Hotspot HotspotConfig `yaml:"hotspot"`

	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		ReadTimeout     int      `yaml:"readTimeout"`
		WriteTimeout    int      `yaml:"writeTimeout"`
		ShutdownTimeout int      `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Storage struct {
		DataDir string `yaml:"dataDir"`
		DBPath  string `yaml:"dbPath"`
		KeyPath string `yaml:"keyPath"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns a configuration populated with default values.
func Default() *Config {
	c := &Config{}

	c.Network.DefaultPort = 8384
	c.Network.EnableAutoDiscovery = true
	c.Network.EnableQRCode = true
	c.Network.EnablePasswordProtection = false
	c.Network.SessionTimeout = Duration(time.Hour)
	c.Network.MaxConcurrentTransfers = 3
	c.Network.MaxFileSize = 2 << 30 // 2 GiB
	c.Network.ScanTimeout = Duration(10 * time.Second)
	c.Network.MaxSavedNetworks = 50

	c.Hotspot.SSID = "LanLink"
	c.Hotspot.Security = SecurityWPA2
	c.Hotspot.MaxClients = 8
	c.Hotspot.Timeout = Duration(30 * time.Minute)

	c.Server.Host = "127.0.0.1"
	c.Server.Port = 8080
	c.Server.AllowedOrigins = []string{"*"}
	c.Server.ReadTimeout = 30
	c.Server.WriteTimeout = 30
	c.Server.ShutdownTimeout = 10

	c.Storage.DataDir = "./data"
	c.Storage.DBPath = "./data/lanlink.db"
	c.Storage.KeyPath = "./data/lanlink.key"

	c.Logging.Level = "info"
	c.Logging.Format = "console"

	return c
}

// Load reads and validates a configuration file, applying defaults for
// fields the file omits.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	dirs := []string{
		c.Storage.DataDir,
		filepath.Dir(c.Storage.DBPath),
		filepath.Dir(c.Storage.KeyPath),
	}
	for _, dir := range dirs {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().Str("path", path).Msg("Configuration loaded successfully")
	return c, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if err := c.Hotspot.Validate(); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		return errors.New("database path is required")
	}

	return nil
}

// Validate checks the networking settings.
func (nc NetworkConfig) Validate() error {
	if nc.DefaultPort <= 0 || nc.DefaultPort > 65535 {
		return fmt.Errorf("invalid default port: %d", nc.DefaultPort)
	}
	if nc.MaxConcurrentTransfers <= 0 {
		return fmt.Errorf("invalid max concurrent transfers: %d", nc.MaxConcurrentTransfers)
	}
	if nc.MaxFileSize <= 0 {
		return fmt.Errorf("invalid max file size: %d", nc.MaxFileSize)
	}
	if nc.ScanTimeout <= 0 {
		return fmt.Errorf("invalid scan timeout: %s", nc.ScanTimeout)
	}
	if nc.MaxSavedNetworks <= 0 {
		return fmt.Errorf("invalid max saved networks: %d", nc.MaxSavedNetworks)
	}
	return nil
}

// Validate checks the hotspot settings. Password strength is only enforced
// when the hotspot is actually enabled; see ValidateCredentials.
func (hc HotspotConfig) Validate() error {
	if hc.SSID == "" {
		return errors.New("hotspot ssid is required")
	}
	if !hc.Security.Valid() {
		return fmt.Errorf("invalid hotspot security mode: %q", hc.Security)
	}
	if hc.MaxClients <= 0 {
		return fmt.Errorf("invalid hotspot max clients: %d", hc.MaxClients)
	}
	return nil
}

// ValidateCredentials checks that the hotspot can be brought up with the
// configured security mode.
func (hc HotspotConfig) ValidateCredentials() error {
	if err := hc.Validate(); err != nil {
		return err
	}
	if hc.Security != SecurityOpen && len(hc.Password) < 8 {
		return errors.New("hotspot password must be at least 8 characters for secured modes")
	}
	return nil
}

// Merge returns a copy of the hotspot config with non-empty overrides applied.
func (hc HotspotConfig) Merge(ssid, password string, security HotspotSecurity) HotspotConfig {
	out := hc
	if ssid != "" {
		out.SSID = ssid
	}
	if password != "" {
		out.Password = password
	}
	if security != "" {
		out.Security = security
	}
	return out
}
