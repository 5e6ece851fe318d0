package mqtt

import (
	"context"
	"sync"
)

// PublishedMessage is a message captured by MockClient
type PublishedMessage struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// MockClient is an in-memory Client for tests. Deliver routes a message to
// matching subscriptions the way a broker would.
type MockClient struct {
	mu            sync.Mutex
	connected     bool
	subscriptions map[string]MessageHandler
	published     []PublishedMessage

	ConnectErr error
	PublishErr error

	// OnSubscribe, when set, runs after each subscription is registered
	OnSubscribe func(topic string)
}

// NewMockClient creates a disconnected mock client
func NewMockClient() *MockClient {
	return &MockClient{
		subscriptions: make(map[string]MessageHandler),
	}
}

func (m *MockClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

func (m *MockClient) Disconnect() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *MockClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	m.mu.Lock()
	m.subscriptions[topic] = handler
	hook := m.OnSubscribe
	m.mu.Unlock()

	if hook != nil {
		hook(topic)
	}
	return nil
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.published = append(m.published, PublishedMessage{
		Topic:    topic,
		Retained: retained,
		Payload:  append([]byte(nil), payload...),
	})
	return nil
}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribed reports whether a subscription exists for filter
func (m *MockClient) Subscribed(filter string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscriptions[filter]
	return ok
}

// Published returns the messages published so far
func (m *MockClient) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.published...)
}

// Deliver synchronously hands a message to every matching handler and
// returns how many handlers received it
func (m *MockClient) Deliver(topic string, payload []byte) int {
	m.mu.Lock()
	var handlers []MessageHandler
	for filter, h := range m.subscriptions {
		if TopicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(&mockMessage{topic: topic, payload: payload})
	}
	return len(handlers)
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Topic() string   { return m.topic }
func (m *mockMessage) Payload() []byte { return m.payload }
func (m *mockMessage) Ack()            {}
