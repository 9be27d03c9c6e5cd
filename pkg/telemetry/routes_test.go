package telemetry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/illmade-knight/go-mqttinflux/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRouteTable(t *testing.T) {
	table := telemetry.DefaultRouteTable()

	assert.Equal(t, []string{
		"house/+/tele/SENSOR",
		"zigbee2mqtt/+/SENSOR",
		"mijia/+/SENSOR",
		"p1-mqtt/+/tele/SENSOR",
	}, table.Subscriptions())

	expected := map[string]string{"house": "plug", "zigbee2mqtt": "temp", "mijia": "mijia", "p1-mqtt": "p1"}
	for route, measurement := range expected {
		r, ok := table.Lookup(route)
		require.True(t, ok, route)
		assert.Equal(t, measurement, r.Measurement)
	}
	house, _ := table.Lookup("house")
	assert.Equal(t, "ENERGY", house.PayloadKey)

	_, ok := table.Lookup("foo")
	assert.False(t, ok)
}

func TestNewRouteTable_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		routes []telemetry.Route
	}{
		{name: "empty", routes: nil},
		{name: "missing name", routes: []telemetry.Route{{Measurement: "m", Subscription: "x/+/y"}}},
		{name: "wildcard name", routes: []telemetry.Route{{Name: "+", Measurement: "m", Subscription: "+/+/y"}}},
		{name: "missing measurement", routes: []telemetry.Route{{Name: "x", Subscription: "x/+/y"}}},
		{name: "subscription outside route", routes: []telemetry.Route{{Name: "x", Measurement: "m", Subscription: "y/+/z"}}},
		{name: "duplicate", routes: []telemetry.Route{
			{Name: "x", Measurement: "m", Subscription: "x/+/a"},
			{Name: "x", Measurement: "n", Subscription: "x/+/b"},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := telemetry.NewRouteTable(tc.routes...)
			assert.Error(t, err)
		})
	}
}

func TestRoute_Extract(t *testing.T) {
	house := telemetry.Route{Name: "house", Measurement: "plug", PayloadKey: "ENERGY", Subscription: "house/+/tele/SENSOR"}

	t.Run("sub-object", func(t *testing.T) {
		got, err := house.Extract(decode(t, `{"Time": "now", "ENERGY": {"Power": "12.3"}}`))
		require.NoError(t, err)
		assert.Equal(t, []string{"Power"}, got.Keys())
		v, _ := got.Get("Power")
		assert.Equal(t, "12.3", v)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := house.Extract(decode(t, `{}`))
		assert.ErrorIs(t, err, telemetry.ErrMissingField)
	})

	t.Run("key is not an object", func(t *testing.T) {
		_, err := house.Extract(decode(t, `{"ENERGY": "12.3"}`))
		assert.ErrorIs(t, err, telemetry.ErrInvalidPayload)
	})

	t.Run("identity", func(t *testing.T) {
		mijia := telemetry.Route{Name: "mijia", Measurement: "mijia", Subscription: "mijia/+/SENSOR"}
		payload := decode(t, `{"Temperature": "20"}`)
		got, err := mijia.Extract(payload)
		require.NoError(t, err)
		assert.Same(t, payload, got)
	})
}

const routesYAML = `
routes:
  - route: house
    measurement: plug
    payload_key: ENERGY
    subscription: house/+/tele/SENSOR
  - route: shelly
    measurement: power
    subscription: shelly/+/status/#
`

func TestParseRouteTable(t *testing.T) {
	table, err := telemetry.ParseRouteTable([]byte(routesYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"house/+/tele/SENSOR", "shelly/+/status/#"}, table.Subscriptions())
	shelly, ok := table.Lookup("shelly")
	require.True(t, ok)
	assert.Equal(t, telemetry.Route{Name: "shelly", Measurement: "power", Subscription: "shelly/+/status/#"}, shelly)

	_, err = telemetry.ParseRouteTable([]byte("routes: [unterminated"))
	assert.Error(t, err)
}

func TestLoadRouteTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(routesYAML), 0o600))

	table, err := telemetry.LoadRouteTable(path)
	require.NoError(t, err)
	_, ok := table.Lookup("house")
	assert.True(t, ok)

	_, err = telemetry.LoadRouteTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRouteTable_ExampleMatchesDefaults(t *testing.T) {
	table, err := telemetry.LoadRouteTable(filepath.Join("..", "..", "configs", "routes.example.yaml"))
	require.NoError(t, err)

	defaults := telemetry.DefaultRouteTable()
	assert.Equal(t, defaults.Subscriptions(), table.Subscriptions())
	for _, want := range telemetry.DefaultRoutes {
		got, ok := table.Lookup(want.Name)
		require.True(t, ok, want.Name)
		assert.Equal(t, want, got)
	}
}
