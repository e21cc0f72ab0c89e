// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
}

type GatewayConfig struct {
	// Active names the protocol started at boot. Empty means the
	// coordinator picks the first configured uplink.
	Active     string `yaml:"active"`
	HistoryDir string `yaml:"history_dir"`

	Serial          SerialConfig  `yaml:"serial"`
	MQTT            MQTTConfig    `yaml:"mqtt"`
	FieldbusSerial  SerialConfig  `yaml:"fieldbus_serial"`
	FieldbusNetwork NetworkConfig `yaml:"fieldbus_network"`
	FTP             FTPConfig     `yaml:"ftp"`
}

// ---- SERIAL LINE ----

type SerialConfig struct {
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud"`
	Parity    string `yaml:"parity"`
	StopBits  int    `yaml:"stop_bits"`
	ByteSize  int    `yaml:"byte_size"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- MESSAGE BROKER ----

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	Topic     string `yaml:"topic"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Keepalive int    `yaml:"keepalive_s"`
	QoS       int    `yaml:"qos"`
}

// ---- FIELDBUS NETWORK LISTENER ----

type NetworkConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ---- BATCH FILE TRANSFER ----

type FTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	RemoteDir string `yaml:"remote_dir"`
	Passive   bool   `yaml:"passive"`
}

// Load reads and decodes the config file and applies defaults.
// Validation is a separate step.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyDefaults fills in the values the original device ships with.
// It MUST NOT invent configured-ness: sections stay unconfigured until
// their key field is set (see IsProtocolConfigured).
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	g := &cfg.Gateway

	if g.HistoryDir == "" {
		g.HistoryDir = "History"
	}

	defaultSerial(&g.Serial)
	defaultSerial(&g.FieldbusSerial)

	if g.MQTT.Port == 0 {
		g.MQTT.Port = 1883
	}
	if g.MQTT.Keepalive == 0 {
		g.MQTT.Keepalive = 60
	}

	if g.FieldbusNetwork.Port != 0 && g.FieldbusNetwork.Host == "" {
		g.FieldbusNetwork.Host = "0.0.0.0"
	}

	if g.FTP.Port == 0 {
		g.FTP.Port = 21
	}
	if g.FTP.RemoteDir == "" {
		g.FTP.RemoteDir = "/"
	}
}

func defaultSerial(s *SerialConfig) {
	if s.BaudRate == 0 {
		s.BaudRate = 9600
	}
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.ByteSize == 0 {
		s.ByteSize = 8
	}
	if s.TimeoutMs == 0 {
		s.TimeoutMs = 1000
	}
}
