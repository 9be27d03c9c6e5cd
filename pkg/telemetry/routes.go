package telemetry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Route describes how messages published under one first topic segment are
// turned into writes.
type Route struct {
	// Name is the first topic segment this route handles.
	Name string `yaml:"route"`
	// Measurement is the InfluxDB measurement the write is filed under.
	Measurement string `yaml:"measurement"`
	// PayloadKey, when set, names a key whose object value replaces the
	// payload before normalization. Empty means the payload is used as is.
	PayloadKey string `yaml:"payload_key,omitempty"`
	// Subscription is the MQTT topic filter subscribed to for this route.
	Subscription string `yaml:"subscription"`
}

// Extract applies the route's extraction rule to a decoded payload.
func (r Route) Extract(payload *Object) (*Object, error) {
	if r.PayloadKey == "" {
		return payload, nil
	}
	v, ok := payload.Get(r.PayloadKey)
	if !ok {
		return nil, fmt.Errorf("%w: route %q expects key %q", ErrMissingField, r.Name, r.PayloadKey)
	}
	sub, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: key %q holds %T, not an object", ErrInvalidPayload, r.PayloadKey, v)
	}
	return sub, nil
}

func (r Route) validate() error {
	if r.Name == "" {
		return fmt.Errorf("route name is required")
	}
	if strings.Contains(r.Name, "/") || strings.ContainsAny(r.Name, "+#") {
		return fmt.Errorf("route %q: name must be a single literal topic segment", r.Name)
	}
	if r.Measurement == "" {
		return fmt.Errorf("route %q: measurement is required", r.Name)
	}
	if !strings.HasPrefix(r.Subscription, r.Name+"/") {
		return fmt.Errorf("route %q: subscription %q must start with %q", r.Name, r.Subscription, r.Name+"/")
	}
	return nil
}

// RouteTable maps route names to routes. It is read-only once built and safe
// for concurrent use.
type RouteTable struct {
	routes map[string]Route
	order  []string
}

// DefaultRoutes are the routes the bridge ships with.
var DefaultRoutes = []Route{
	{Name: "house", Measurement: "plug", PayloadKey: "ENERGY", Subscription: "house/+/tele/SENSOR"},
	{Name: "zigbee2mqtt", Measurement: "temp", Subscription: "zigbee2mqtt/+/SENSOR"},
	{Name: "mijia", Measurement: "mijia", Subscription: "mijia/+/SENSOR"},
	{Name: "p1-mqtt", Measurement: "p1", Subscription: "p1-mqtt/+/tele/SENSOR"},
}

// NewRouteTable builds a table from routes, rejecting invalid or duplicate entries.
func NewRouteTable(routes ...Route) (*RouteTable, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("route table needs at least one route")
	}
	t := &RouteTable{routes: make(map[string]Route, len(routes))}
	for _, r := range routes {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.routes[r.Name]; dup {
			return nil, fmt.Errorf("route %q defined more than once", r.Name)
		}
		t.routes[r.Name] = r
		t.order = append(t.order, r.Name)
	}
	return t, nil
}

// DefaultRouteTable returns a table holding DefaultRoutes.
func DefaultRouteTable() *RouteTable {
	t, err := NewRouteTable(DefaultRoutes...)
	if err != nil {
		panic(err)
	}
	return t
}

type routeFile struct {
	Routes []Route `yaml:"routes"`
}

// ParseRouteTable reads a YAML document of the form:
//
//	routes:
//	  - route: house
//	    measurement: plug
//	    payload_key: ENERGY
//	    subscription: house/+/tele/SENSOR
func ParseRouteTable(data []byte) (*RouteTable, error) {
	var f routeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}
	return NewRouteTable(f.Routes...)
}

// LoadRouteTable reads a YAML route table from path.
func LoadRouteTable(path string) (*RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table %s: %w", path, err)
	}
	return ParseRouteTable(data)
}

// Lookup returns the route registered under name.
func (t *RouteTable) Lookup(name string) (Route, bool) {
	r, ok := t.routes[name]
	return r, ok
}

// Subscriptions lists the topic filters for every route, in table order.
func (t *RouteTable) Subscriptions() []string {
	subs := make([]string, 0, len(t.order))
	for _, name := range t.order {
		subs = append(subs, t.routes[name].Subscription)
	}
	return subs
}
