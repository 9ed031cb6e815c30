package choro

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTService manages the MQTT connection: it subscribes to the input
// topics and routes decoded frames into session inboxes.
type MQTTService struct {
	client      mqtt.Client
	cfg         MQTTConfig
	prefix      string
	sessions    *SessionTracker
	isConnected bool
	mu          sync.RWMutex
}

var (
	globalService *MQTTService
	serviceMu     sync.Mutex
)

// InitMQTT initializes the global MQTT service. MQTT_BROKER overrides the
// configured broker; with neither set, MQTT is disabled and (nil, nil) is
// returned so the HTTP surface can run alone.
func InitMQTT(cfg MQTTConfig, sessions *SessionTracker) (*MQTTService, error) {
	serviceMu.Lock()
	defer serviceMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = cfg.Broker
	}
	if broker == "" {
		log.Println("[MQTT] disabled: no broker configured")
		return nil, nil
	}
	if sessions == nil {
		return nil, fmt.Errorf("MQTT enabled but no session tracker provided")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "parcelview"
	}

	svc := &MQTTService{
		cfg:      cfg,
		prefix:   prefix,
		sessions: sessions,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && cfg.ClientID != "" {
		clientID = cfg.ClientID
	}
	if clientID == "" {
		clientID = "parcelview"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && cfg.Username != "" {
		username = cfg.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && cfg.Password != "" {
			password = cfg.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // preserve subscriptions across reconnects
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(svc.onConnect)
	opts.SetConnectionLostHandler(svc.onConnectionLost)
	opts.SetReconnectingHandler(svc.onReconnecting)

	svc.client = mqtt.NewClient(opts)

	go svc.connectWithRetry()

	globalService = svc
	return svc, nil
}

// GetMQTTService returns the global MQTT service instance.
func GetMQTTService() *MQTTService {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	return globalService
}

// connectWithRetry connects with exponential backoff until it succeeds.
func (s *MQTTService) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := s.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected")
				s.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// Input topic suffixes under the service prefix.
const (
	topicTouch   = "input/touch"
	topicKeys    = "input/keys"
	topicOverlay = "overlay"
)

func (s *MQTTService) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing to input topics...")
	s.setConnected(true)

	subs := map[string]mqtt.MessageHandler{
		s.prefix + "/" + topicTouch:   s.handleTouch,
		s.prefix + "/" + topicKeys:    s.handleKeys,
		s.prefix + "/" + topicOverlay: s.handleOverlay,
	}
	for topic, handler := range subs {
		token := client.Subscribe(topic, 0, handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] Warning: subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] subscribed to %s", topic)
		}
	}
}

func (s *MQTTService) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	s.setConnected(false)
}

func (s *MQTTService) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// touchFrame is the input/touch payload.
type touchFrame struct {
	Session string       `json:"session"`
	Type    TouchType    `json:"type"`
	Points  []TouchPoint `json:"points"`
}

func (s *MQTTService) handleTouch(client mqtt.Client, msg mqtt.Message) {
	var frame touchFrame
	if err := json.Unmarshal(msg.Payload(), &frame); err != nil {
		log.Printf("[MQTT] Warning: bad touch payload: %v", err)
		return
	}
	switch frame.Type {
	case TouchStart, TouchMove, TouchEnd, TouchCancel:
	default:
		log.Printf("[MQTT] Warning: unknown touch type %q", frame.Type)
		return
	}

	InputFramesTotal.WithLabelValues("touch").Inc()
	sess, _ := s.sessions.Ensure(frame.Session)
	if !sess.QueueTouch(TouchEvent{Type: frame.Type, Points: frame.Points}) {
		log.Printf("[MQTT] Warning: session %s inbox full, dropped touch frame", sess.ID)
	}
}

// keyFrame is the input/keys payload.
type keyFrame struct {
	Session string `json:"session"`
	Action  string `json:"action"` // press | release
	Key     string `json:"key"`    // direction name, e.g. "pan-up"
}

func (s *MQTTService) handleKeys(client mqtt.Client, msg mqtt.Message) {
	var frame keyFrame
	if err := json.Unmarshal(msg.Payload(), &frame); err != nil {
		log.Printf("[MQTT] Warning: bad key payload: %v", err)
		return
	}

	dir, ok := ParseDirection(frame.Key)
	if !ok {
		log.Printf("[MQTT] Warning: unknown key %q", frame.Key)
		return
	}
	var press bool
	switch strings.ToLower(frame.Action) {
	case "press":
		press = true
	case "release":
		press = false
	default:
		log.Printf("[MQTT] Warning: unknown key action %q", frame.Action)
		return
	}

	InputFramesTotal.WithLabelValues("keys").Inc()
	sess, _ := s.sessions.Ensure(frame.Session)
	if !sess.QueueKey(press, dir) {
		log.Printf("[MQTT] Warning: session %s inbox full, dropped key frame", sess.ID)
	}
}

// overlayFrame is the overlay payload.
type overlayFrame struct {
	Session string `json:"session"`
	Open    bool   `json:"open"`
}

func (s *MQTTService) handleOverlay(client mqtt.Client, msg mqtt.Message) {
	var frame overlayFrame
	if err := json.Unmarshal(msg.Payload(), &frame); err != nil {
		log.Printf("[MQTT] Warning: bad overlay payload: %v", err)
		return
	}

	InputFramesTotal.WithLabelValues("overlay").Inc()
	sess, _ := s.sessions.Ensure(frame.Session)
	if !sess.QueueOverlay(frame.Open) {
		log.Printf("[MQTT] Warning: session %s inbox full, dropped overlay frame", sess.ID)
	}
}

// IsConnected reports whether the service currently has a broker
// connection.
func (s *MQTTService) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

func (s *MQTTService) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isConnected = connected
}

// Prefix returns the topic prefix in use.
func (s *MQTTService) Prefix() string {
	return s.prefix
}

// Client returns the underlying client for publishing.
func (s *MQTTService) Client() mqtt.Client {
	return s.client
}

// Disconnect closes the connection gracefully.
func (s *MQTTService) Disconnect() {
	if s.client != nil && s.client.IsConnected() {
		log.Println("[MQTT] disconnecting...")
		s.client.Disconnect(250)
		s.setConnected(false)
	}
}

// newMQTTServiceWithMock builds a service around a provided client, for
// tests.
func newMQTTServiceWithMock(client mqtt.Client, prefix string, sessions *SessionTracker) *MQTTService {
	if prefix == "" {
		prefix = "parcelview"
	}
	return &MQTTService{
		client:   client,
		prefix:   prefix,
		sessions: sessions,
	}
}
