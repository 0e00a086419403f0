package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/petsync/sureflap-sync/pkg/config"
	"github.com/petsync/sureflap-sync/pkg/model"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	setSuffix         = "/set"
	testLoginCommand  = "command/test_login"
	testLoginResponse = "response/test_login"
)

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = fmt.Errorf("mqtt store: not connected")

// TestLoginHandler answers credential-check requests arriving over MQTT.
type TestLoginHandler func(model.TestLoginRequest) model.TestLoginResponse

// MQTTStore mirrors the state hierarchy onto retained MQTT topics under
// a configurable prefix. Leaf values are JSON-encoded payloads; deleting
// a subtree publishes empty retained payloads for every known topic
// below it. Write intents arrive on `<prefix>/<path>/set` topics.
//
// Readback (Get) is served from a local cache of everything this
// process has written; the broker retains the same values for other
// subscribers.
type MQTTStore struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger *slog.Logger

	mu     sync.RWMutex
	leaves map[string]any

	intents chan model.WriteIntent

	handlerMu sync.RWMutex
	onLogin   TestLoginHandler
}

// Connect establishes the broker connection, sets a last-will marking
// the bridge offline and subscribes to the command topics.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTStore, error) {
	s := &MQTTStore{
		cfg:     cfg,
		logger:  logger,
		leaves:  make(map[string]any),
		intents: make(chan model.WriteIntent, 16),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetWill(s.topic("info/connection"), "false", byte(cfg.QoS), true)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.subscribe()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = pahomqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt store: connect timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt store: connecting: %w", err)
	}

	return s, nil
}

// subscribe (re)establishes the wildcard subscription. Called on every
// (re)connect so subscriptions survive broker restarts.
func (s *MQTTStore) subscribe() {
	topic := s.cfg.TopicPrefix + "/#"
	token := s.client.Subscribe(topic, byte(s.cfg.QoS), s.handleMessage)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		s.logger.Error("mqtt subscribe failed", "topic", topic, "error", token.Error())
	}
}

// handleMessage routes incoming publishes: `.../set` topics become write
// intents, the test-login command topic triggers the login handler, and
// everything else (including our own retained state) is ignored.
func (s *MQTTStore) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	rel, ok := strings.CutPrefix(msg.Topic(), s.cfg.TopicPrefix+"/")
	if !ok {
		return
	}

	if rel == testLoginCommand {
		s.handleTestLogin(msg.Payload())
		return
	}

	path, ok := strings.CutSuffix(rel, setSuffix)
	if !ok || path == "" {
		return
	}

	intent := model.WriteIntent{
		Path:  Split(path),
		Value: decodePayload(msg.Payload()),
	}
	select {
	case s.intents <- intent:
	default:
		s.logger.Warn("write intent dropped, queue full", "path", path)
	}
}

func (s *MQTTStore) handleTestLogin(payload []byte) {
	s.handlerMu.RLock()
	handler := s.onLogin
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	var req model.TestLoginRequest
	resp := model.TestLoginResponse{}
	if err := json.Unmarshal(payload, &req); err != nil {
		resp.Error = fmt.Sprintf("malformed test_login request: %v", err)
	} else {
		resp = handler(req)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshaling test_login response", "error", err)
		return
	}
	s.publish(s.topic(testLoginResponse), data, false)
}

// OnTestLogin registers the credential-check handler.
func (s *MQTTStore) OnTestLogin(handler TestLoginHandler) {
	s.handlerMu.Lock()
	s.onLogin = handler
	s.handlerMu.Unlock()
}

// Intents returns the write-intent channel.
func (s *MQTTStore) Intents() <-chan model.WriteIntent {
	return s.intents
}

// EnsureObject is a no-op for MQTT: the topic tree is implicit.
func (s *MQTTStore) EnsureObject(context.Context, string, model.ObjectKind) error {
	return nil
}

// Exists reports whether this process has published a value at path.
func (s *MQTTStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.leaves[path]
	return ok, nil
}

// Get reads back the last value written at path.
func (s *MQTTStore) Get(_ context.Context, path string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.leaves[path]
	return v, ok, nil
}

// Set publishes a retained JSON value for the leaf.
func (s *MQTTStore) Set(_ context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", path, err)
	}
	if err := s.publish(s.topic(path), data, true); err != nil {
		return err
	}

	s.mu.Lock()
	s.leaves[path] = value
	s.mu.Unlock()
	return nil
}

// Delete clears the retained payloads of the leaf and everything below.
func (s *MQTTStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	doomed := make([]string, 0, 8)
	prefix := path + "/"
	for k := range s.leaves {
		if k == path || strings.HasPrefix(k, prefix) {
			doomed = append(doomed, k)
			delete(s.leaves, k)
		}
	}
	s.mu.Unlock()

	for _, k := range doomed {
		// An empty retained payload removes the topic from the broker.
		if err := s.publish(s.topic(k), nil, true); err != nil {
			return err
		}
	}
	return nil
}

// Close publishes the offline marker and disconnects.
func (s *MQTTStore) Close() {
	if s.client.IsConnected() {
		_ = s.publish(s.topic("info/connection"), []byte("false"), true)
		s.client.Disconnect(uint(publishTimeout.Milliseconds()))
	}
	close(s.intents)
}

func (s *MQTTStore) topic(path string) string {
	return s.cfg.TopicPrefix + "/" + path
}

func (s *MQTTStore) publish(topic string, payload []byte, retained bool) error {
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	token := s.client.Publish(topic, byte(s.cfg.QoS), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt store: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt store: publishing to %s: %w", topic, err)
	}
	return nil
}

// decodePayload interprets a set payload as JSON when possible, falling
// back to the raw string.
func decodePayload(payload []byte) any {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	return v
}
