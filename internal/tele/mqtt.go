package tele

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/temoto/alive/v2"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/protocol"
)

const (
	defaultNetworkTimeout = 5 * time.Second
	queueSize             = 128
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

type publication struct {
	topic    string
	retained bool
	payload  []byte
}

// MQTTSink publishes JSON messages under <prefix>/<role>/... from a single
// background goroutine. When the queue is full new messages are dropped.
type MQTTSink struct {
	m     mqtt.Client
	cfg   MQTTConfig
	log   *slog.Logger
	queue chan publication
	alive *alive.Alive
	now   func() time.Time
}

// NewMQTTSink connects to cfg.Broker in the background and returns
// immediately. Connection failures are retried and logged, never fatal.
func NewMQTTSink(cfg MQTTConfig, log *slog.Logger) *MQTTSink {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	mqttLog := mqttLogger{log: log.With("device", "CENTRAL", "component", "mqtt")}
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout*3).
		SetKeepAlive(cfg.Timeout*6).
		SetMaxReconnectInterval(cfg.Timeout*3).
		SetPingTimeout(cfg.Timeout).
		SetWriteTimeout(cfg.Timeout).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("[TELEM] mqtt connected", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("[TELEM] mqtt connection lost", "error", err)
		})
	return newMQTTSink(mqtt.NewClient(opts), cfg, log)
}

func newMQTTSink(m mqtt.Client, cfg MQTTConfig, log *slog.Logger) *MQTTSink {
	cfg = cfg.withDefaults()
	s := &MQTTSink{
		m:     m,
		cfg:   cfg,
		log:   log,
		queue: make(chan publication, queueSize),
		alive: alive.NewAlive(),
		now:   time.Now,
	}
	s.alive.Add(1)
	go s.run()
	return s
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultNetworkTimeout
	}
	if c.ClientID == "" {
		c.ClientID = "blegate-central"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "blegate"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	return c
}

// TelemetryTopic returns the topic for a reading kind.
func (s *MQTTSink) TelemetryTopic(role ble.Role, kind string) string {
	return fmt.Sprintf("%s/%s/telemetry/%s", s.cfg.TopicPrefix, strings.ToLower(role.String()), kind)
}

// StateTopic returns the retained state topic of a role.
func (s *MQTTSink) StateTopic(role ble.Role) string {
	return fmt.Sprintf("%s/%s/state", s.cfg.TopicPrefix, strings.ToLower(role.String()))
}

func (s *MQTTSink) Telemetry(role ble.Role, r protocol.Reading) {
	s.enqueue(s.TelemetryTopic(role, r.Kind), false, TelemetryMessage{
		Role:   role.String(),
		Kind:   r.Kind,
		Values: r.Values,
		Time:   s.now().UTC(),
	})
}

func (s *MQTTSink) PeerState(role ble.Role, state string, authenticated bool) {
	s.enqueue(s.StateTopic(role), true, StateMessage{
		Role:          role.String(),
		State:         state,
		Authenticated: authenticated,
		Time:          s.now().UTC(),
	})
}

// Close stops the publisher and disconnects. Queued messages are dropped.
func (s *MQTTSink) Close() {
	s.alive.Stop()
	s.alive.Wait()
	if s.m.IsConnected() {
		s.m.Disconnect(uint(s.cfg.Timeout / time.Millisecond))
	}
}

func (s *MQTTSink) enqueue(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error("[TELEM] encode", "topic", topic, "error", err)
		return
	}
	select {
	case s.queue <- publication{topic: topic, retained: retained, payload: payload}:
	default:
		s.log.Warn("[TELEM] mqtt queue full, dropping", "topic", topic)
	}
}

func (s *MQTTSink) run() {
	defer s.alive.Done()
	s.online()
	for {
		select {
		case <-s.alive.StopChan():
			return
		case p := <-s.queue:
			t := s.m.Publish(p.topic, s.cfg.QoS, p.retained, p.payload)
			_ = s.tokenWait(t, "publish "+p.topic)
		}
	}
}

// online connects, retrying every second until it succeeds or the sink
// is closed.
func (s *MQTTSink) online() {
	for !s.m.IsConnected() {
		if s.tokenWait(s.m.Connect(), "connect") == nil {
			return
		}
		select {
		case <-s.alive.StopChan():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *MQTTSink) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(s.cfg.Timeout) {
		err := fmt.Errorf("tele: mqtt %s timeout", tag)
		s.log.Error("[TELEM] " + err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = fmt.Errorf("tele: mqtt %s: %w", tag, err)
		s.log.Error("[TELEM] " + err.Error())
		return err
	}
	return nil
}

var _ Sink = (*MQTTSink)(nil)

// mqttLogger adapts slog to paho's package-level loggers.
type mqttLogger struct {
	log *slog.Logger
}

func (l mqttLogger) Println(v ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l mqttLogger) Printf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}
