package choro

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes per-session view state and label sets to MQTT
// consumers. View topics are retained so a late subscriber immediately
// sees the current camera.
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	views  map[string]ViewState // last published view per session
	mu     sync.RWMutex
}

// NewPublisher creates a publisher. A nil client disables publishing,
// which keeps tests and HTTP-only runs simple. MQTT_PUBLISH_PREFIX
// overrides the prefix.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "parcelview"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    0,
		views:  make(map[string]ViewState),
	}
}

// viewMessage is the view/<session> payload.
type viewMessage struct {
	Session   string    `json:"session"`
	View      ViewState `json:"view"`
	Encoded   string    `json:"encoded"`
	Timestamp int64     `json:"timestamp"`
}

// PublishView publishes a session's camera state, retained.
func (p *Publisher) PublishView(sessionID string, v ViewState) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	p.views[sessionID] = v
	p.mu.Unlock()

	msg := viewMessage{
		Session:   sessionID,
		View:      v,
		Encoded:   EncodeViewState(v),
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling view: %w", err)
	}

	topic := fmt.Sprintf("%s/view/%s", p.prefix, sessionID)
	token := p.client.Publish(topic, p.qos, true, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		PublishErrorsTotal.Inc()
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	ViewPublishesTotal.Inc()
	return nil
}

// labelMessage is the labels/<session> payload.
type labelMessage struct {
	Session   string  `json:"session"`
	Labels    []Label `json:"labels"`
	Timestamp int64   `json:"timestamp"`
}

// PublishLabels publishes a session's label set after a recompute.
func (p *Publisher) PublishLabels(sessionID string, labels []Label) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	if labels == nil {
		labels = []Label{}
	}
	msg := labelMessage{
		Session:   sessionID,
		Labels:    labels,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling labels: %w", err)
	}

	topic := fmt.Sprintf("%s/labels/%s", p.prefix, sessionID)
	token := p.client.Publish(topic, p.qos, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		PublishErrorsTotal.Inc()
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// ClearSession deletes a session's retained view topic by publishing an
// empty retained payload, and drops the cached view.
func (p *Publisher) ClearSession(sessionID string) error {
	p.mu.Lock()
	delete(p.views, sessionID)
	p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		return nil
	}

	topic := fmt.Sprintf("%s/view/%s", p.prefix, sessionID)
	token := p.client.Publish(topic, p.qos, true, []byte{})
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("clearing %s: %w", topic, token.Error())
	}
	return nil
}

// LastView returns the most recently published view for a session.
func (p *Publisher) LastView(sessionID string) (ViewState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.views[sessionID]
	return v, ok
}

// SetQoS sets the publish QoS level (0, 1, or 2).
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}
