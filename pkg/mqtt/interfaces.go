package mqtt

import "context"

// Publisher publishes raw payloads. The notifier and scenario runner only need this.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Subscriber registers handlers for topic filters, which may contain + and #
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Client is a broker connection. Subscriptions survive reconnects.
type Client interface {
	Publisher
	Subscriber

	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// MessageHandler is called for every message matching a subscription
type MessageHandler func(Message)

// Message is an inbound MQTT message
type Message interface {
	Topic() string
	Payload() []byte
	Ack()
}
