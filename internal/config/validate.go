// internal/config/validate.go
package config

import "fmt"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	g := cfg.Gateway

	if g.Active != "" && !IsSupportedProtocol(g.Active) {
		return fmt.Errorf("config: active protocol %q is not supported", g.Active)
	}

	if err := validateSerial("serial", g.Serial); err != nil {
		return err
	}
	if err := validateSerial("fieldbus_serial", g.FieldbusSerial); err != nil {
		return err
	}

	if g.MQTT.Port < 0 || g.MQTT.Port > 65535 {
		return fmt.Errorf("config: mqtt.port %d out of range", g.MQTT.Port)
	}
	if g.MQTT.QoS < 0 || g.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2, got %d", g.MQTT.QoS)
	}

	if g.FieldbusNetwork.Port < 0 || g.FieldbusNetwork.Port > 65535 {
		return fmt.Errorf("config: fieldbus_network.port %d out of range", g.FieldbusNetwork.Port)
	}

	if g.FTP.Port < 0 || g.FTP.Port > 65535 {
		return fmt.Errorf("config: ftp.port %d out of range", g.FTP.Port)
	}

	return nil
}

func validateSerial(section string, s SerialConfig) error {
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("config: %s.parity must be N, E or O, got %q", section, s.Parity)
	}

	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("config: %s.stop_bits must be 1 or 2, got %d", section, s.StopBits)
	}
	if s.ByteSize < 5 || s.ByteSize > 8 {
		return fmt.Errorf("config: %s.byte_size must be 5..8, got %d", section, s.ByteSize)
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("config: %s.baud must be > 0, got %d", section, s.BaudRate)
	}
	if s.TimeoutMs <= 0 {
		return fmt.Errorf("config: %s.timeout_ms must be > 0, got %d", section, s.TimeoutMs)
	}

	return nil
}
