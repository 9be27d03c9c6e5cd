package telemetry

import (
	"fmt"
	"strings"
)

// Topic is an MQTT topic split into the three parts the router cares about.
type Topic struct {
	// Route selects the Route Table entry.
	Route string
	// Device becomes the "location" tag.
	Device string
	// Tail is everything after the second separator. It may contain further
	// '/' characters and is not used for routing.
	Tail string
}

// String reassembles the topic.
func (t Topic) String() string {
	return t.Route + "/" + t.Device + "/" + t.Tail
}

// ParseTopic splits a topic at its first two '/' separators.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.SplitN(topic, "/", 3)
	if len(parts) != 3 {
		return Topic{}, fmt.Errorf("%w: %q needs at least two '/' separators", ErrMalformedTopic, topic)
	}
	return Topic{Route: parts[0], Device: parts[1], Tail: parts[2]}, nil
}
