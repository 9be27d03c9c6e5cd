package telemetry_test

import (
	"testing"

	"github.com/illmade-knight/go-mqttinflux/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	testCases := []struct {
		name  string
		topic string
		want  telemetry.Topic
	}{
		{name: "tail with separators", topic: "house/kitchen/tele/SENSOR", want: telemetry.Topic{Route: "house", Device: "kitchen", Tail: "tele/SENSOR"}},
		{name: "single segment tail", topic: "zigbee2mqtt/livingroom/SENSOR", want: telemetry.Topic{Route: "zigbee2mqtt", Device: "livingroom", Tail: "SENSOR"}},
		{name: "empty tail", topic: "mijia/bedroom/", want: telemetry.Topic{Route: "mijia", Device: "bedroom", Tail: ""}},
		{name: "empty segments", topic: "//", want: telemetry.Topic{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := telemetry.ParseTopic(tc.topic)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.topic, got.String())
		})
	}
}

func TestParseTopic_Malformed(t *testing.T) {
	for _, topic := range []string{"", "house", "house/kitchen"} {
		t.Run(topic, func(t *testing.T) {
			_, err := telemetry.ParseTopic(topic)
			assert.ErrorIs(t, err, telemetry.ErrMalformedTopic)
		})
	}
}
