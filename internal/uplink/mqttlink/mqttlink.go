// internal/uplink/mqttlink/mqttlink.go
package mqttlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tamzrod/ct-gateway/internal/config"
	"github.com/tamzrod/ct-gateway/internal/telemetry"
	"github.com/tamzrod/ct-gateway/internal/uplink"
)

const (
	clientID         = "ct-gateway"
	connectTimeout   = 5 * time.Second
	publishTimeout   = 5 * time.Second
	inboundRetention = 100
)

// Message is one retained inbound broker message.
type Message struct {
	ReceivedAt time.Time
	Topic      string
	Payload    string
}

// Uplink publishes readings to a broker topic as JSON and retains the
// last few inbound messages on that topic for inspection.
type Uplink struct {
	cfg config.MQTTConfig
	log *slog.Logger

	mu      sync.Mutex
	client  mqtt.Client
	running bool
	inbound []Message
}

func New(cfg config.MQTTConfig, log *slog.Logger) *Uplink {
	return &Uplink{
		cfg: cfg,
		log: log.With("uplink", uplink.MessageBus),
	}
}

func (u *Uplink) Kind() uplink.Kind { return uplink.MessageBus }

// Start connects to the broker with a bounded timeout and subscribes
// to the configured topic on connect. An unreachable broker is
// expected in the field: it is logged as a warning and leaves the
// uplink not running, without an error.
func (u *Uplink) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", u.cfg.Broker, u.cfg.Port)).
		SetClientID(clientID).
		SetKeepAlive(time.Duration(u.cfg.Keepalive) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	if u.cfg.Username != "" {
		opts.SetUsername(u.cfg.Username)
		opts.SetPassword(u.cfg.Password)
	}

	topic := u.cfg.Topic
	qos := byte(u.cfg.QoS)

	opts.OnConnect = func(c mqtt.Client) {
		u.log.Info("broker connected", "broker", u.cfg.Broker, "port", u.cfg.Port)
		if token := c.Subscribe(topic, qos, u.onMessage); token.Wait() && token.Error() != nil {
			u.log.Warn("subscribe failed", "topic", topic, "err", token.Error())
		} else {
			u.log.Info("subscribed", "topic", topic)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		u.log.Warn("broker connection lost", "err", err)
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		client.Disconnect(0)
		u.log.Warn("broker unreachable, uplink left stopped",
			"broker", u.cfg.Broker, "port", u.cfg.Port, "err", token.Error())
		return nil
	}

	u.client = client
	u.running = true
	return nil
}

func (u *Uplink) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.client != nil {
		u.client.Disconnect(250)
		u.client = nil
	}
	u.running = false
}

func (u *Uplink) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// Deliver publishes one reading as JSON. A silent no-op while the
// uplink is not running or the broker link is down.
func (u *Uplink) Deliver(r telemetry.Reading) error {
	payload, err := json.Marshal(wireReading{
		Timestamp: r.CapturedAt.Format(telemetry.TimeLayout),
		DeviceID:  r.DeviceID,
		Channel:   r.Channel,
		Value:     r.Value,
		Unit:      r.Unit,
	})
	if err != nil {
		return err
	}
	return u.Publish(u.cfg.Topic, payload)
}

// Publish sends a raw payload; only while running and connected.
func (u *Uplink) Publish(topic string, payload []byte) error {
	u.mu.Lock()
	client := u.client
	running := u.running
	u.mu.Unlock()

	if !running || client == nil || !client.IsConnected() {
		return nil
	}

	token := client.Publish(topic, byte(u.cfg.QoS), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqttlink: publish timed out")
	}
	return token.Error()
}

func (u *Uplink) onMessage(_ mqtt.Client, msg mqtt.Message) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.inbound = append(u.inbound, Message{
		ReceivedAt: time.Now(),
		Topic:      msg.Topic(),
		Payload:    string(msg.Payload()),
	})
	if len(u.inbound) > inboundRetention {
		u.inbound = u.inbound[len(u.inbound)-inboundRetention:]
	}
}

// Snapshot returns a copy of the retained inbound messages.
func (u *Uplink) Snapshot() any {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Message, len(u.inbound))
	copy(out, u.inbound)
	return out
}

// wireReading is the broker payload shape.
type wireReading struct {
	Timestamp string  `json:"timestamp"`
	DeviceID  string  `json:"device_id"`
	Channel   int     `json:"channel"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}
