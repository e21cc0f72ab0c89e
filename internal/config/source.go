// internal/config/source.go
package config

// Protocol names as they appear in config files, status reports and the
// dashboard. They match the wire names the original device used.
const (
	ProtocolSerialSource    = "UART"
	ProtocolMessageBus      = "MQTT"
	ProtocolFieldbusSerial  = "RTU"
	ProtocolFieldbusNetwork = "TCP"
	ProtocolBatchFile       = "FTP"
)

var supportedProtocols = []string{
	ProtocolSerialSource,
	ProtocolMessageBus,
	ProtocolFieldbusSerial,
	ProtocolFieldbusNetwork,
	ProtocolBatchFile,
}

var protocolDescriptions = map[string]string{
	ProtocolSerialSource:    "serial telemetry source",
	ProtocolMessageBus:      "message broker publishing",
	ProtocolFieldbusSerial:  "fieldbus register server (serial line)",
	ProtocolFieldbusNetwork: "fieldbus register server (network)",
	ProtocolBatchFile:       "batch file transfer",
}

// SupportedProtocols returns the fixed protocol set in start order.
func SupportedProtocols() []string {
	out := make([]string, len(supportedProtocols))
	copy(out, supportedProtocols)
	return out
}

func IsSupportedProtocol(kind string) bool {
	for _, p := range supportedProtocols {
		if p == kind {
			return true
		}
	}
	return false
}

func ProtocolDescription(kind string) string {
	if d, ok := protocolDescriptions[kind]; ok {
		return d
	}
	return "unknown protocol"
}

// IsProtocolConfigured reports whether the section carries enough to
// attempt a start. Defaults alone never make a protocol configured.
func (c *Config) IsProtocolConfigured(kind string) bool {
	g := c.Gateway
	switch kind {
	case ProtocolSerialSource:
		return g.Serial.Port != ""
	case ProtocolMessageBus:
		return g.MQTT.Broker != "" && g.MQTT.Topic != ""
	case ProtocolFieldbusSerial:
		return g.FieldbusSerial.Port != ""
	case ProtocolFieldbusNetwork:
		return g.FieldbusNetwork.Port > 0
	case ProtocolBatchFile:
		return g.FTP.Host != ""
	default:
		return false
	}
}

// ProtocolConfig exposes a section as an opaque field map for
// observability consumers. Secrets are redacted.
func (c *Config) ProtocolConfig(kind string) (map[string]any, bool) {
	g := c.Gateway
	switch kind {
	case ProtocolSerialSource:
		return serialFields(g.Serial), true
	case ProtocolMessageBus:
		return map[string]any{
			"broker":      g.MQTT.Broker,
			"port":        g.MQTT.Port,
			"topic":       g.MQTT.Topic,
			"username":    g.MQTT.Username,
			"password":    redact(g.MQTT.Password),
			"keepalive_s": g.MQTT.Keepalive,
			"qos":         g.MQTT.QoS,
		}, true
	case ProtocolFieldbusSerial:
		return serialFields(g.FieldbusSerial), true
	case ProtocolFieldbusNetwork:
		return map[string]any{
			"host": g.FieldbusNetwork.Host,
			"port": g.FieldbusNetwork.Port,
		}, true
	case ProtocolBatchFile:
		return map[string]any{
			"host":       g.FTP.Host,
			"port":       g.FTP.Port,
			"username":   g.FTP.Username,
			"password":   redact(g.FTP.Password),
			"remote_dir": g.FTP.RemoteDir,
			"passive":    g.FTP.Passive,
		}, true
	default:
		return nil, false
	}
}

func serialFields(s SerialConfig) map[string]any {
	return map[string]any{
		"port":       s.Port,
		"baud":       s.BaudRate,
		"parity":     s.Parity,
		"stop_bits":  s.StopBits,
		"byte_size":  s.ByteSize,
		"timeout_ms": s.TimeoutMs,
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// ActiveProtocol returns the protocol selected for boot, or "".
func (c *Config) ActiveProtocol() string {
	return c.Gateway.Active
}

// SetActiveProtocol records a new boot selection, rejecting unknown
// kinds. The in-memory config only; persisting is the caller's concern.
func (c *Config) SetActiveProtocol(kind string) bool {
	if !IsSupportedProtocol(kind) {
		return false
	}
	c.Gateway.Active = kind
	return true
}
