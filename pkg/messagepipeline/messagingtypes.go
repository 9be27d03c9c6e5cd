package messagepipeline

import (
	"time"
)

// TopicAttribute is the Attributes key holding the topic a message was
// published on.
const TopicAttribute = "mqtt_topic"

// Message is the internal representation of an event flowing through the
// pipeline: its data, broker metadata and acknowledgment handles.
type Message struct {
	MessageData

	// Attributes holds metadata from the broker, e.g. the MQTT topic.
	Attributes map[string]string

	// Ack signals that processing finished and the message can be forgotten.
	Ack func()

	// Nack signals that processing failed.
	Nack func()
}

// MessageData holds the essential payload of a message.
type MessageData struct {
	// ID is the broker's identifier for the message, if any.
	ID string `json:"id"`

	// Payload is the raw byte content of the message.
	Payload []byte `json:"payload"`

	// PublishTime is when the message was received from the broker.
	PublishTime time.Time `json:"publishTime"`
}

// Topic returns the topic attribute of the message.
func (m Message) Topic() string {
	return m.Attributes[TopicAttribute]
}
