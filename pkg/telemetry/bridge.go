// Package telemetry turns MQTT sensor messages into InfluxDB writes.
//
// A message goes through Received → Parsed → Routed → Normalized → Written.
// Any failure along the way drops that one message; nothing is retried and no
// state is carried from one message to the next.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-mqttinflux/pkg/messagepipeline"
	"github.com/illmade-knight/go-mqttinflux/pkg/metrics"
	"github.com/rs/zerolog"
)

// LocationTag is the tag key that carries the device segment of the topic.
const LocationTag = "location"

// WriteRequest is one point to store. It carries no timestamp; the sink
// stamps it with the ingestion time.
type WriteRequest struct {
	Measurement string
	Tags        map[string]string
	Fields      Fields
}

// Sink persists write requests. Implementations own any timeout or retry
// policy; the bridge calls WritePoint exactly once per valid message.
type Sink interface {
	WritePoint(ctx context.Context, req WriteRequest) error
}

// TagSource returns additional static tags for a device, or nil.
type TagSource func(ctx context.Context, device string) map[string]string

// BuildWriteRequest parses topic, decodes payload and routes it through table.
func BuildWriteRequest(table *RouteTable, topic string, payload []byte) (*WriteRequest, error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return nil, err
	}
	obj, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	route, ok := table.Lookup(t.Route)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, t.Route)
	}
	data, err := route.Extract(obj)
	if err != nil {
		return nil, err
	}
	return &WriteRequest{
		Measurement: route.Measurement,
		Tags:        map[string]string{LocationTag: t.Device},
		Fields:      Normalize(data),
	}, nil
}

// Bridge routes messages from the transport to a Sink.
type Bridge struct {
	routes  *RouteTable
	sink    Sink
	tags    TagSource
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithMetrics records message outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithTagSource adds per-device tags to every write. Extra tags never
// replace the location tag.
func WithTagSource(src TagSource) Option {
	return func(b *Bridge) { b.tags = src }
}

// NewBridge creates a Bridge.
func NewBridge(routes *RouteTable, sink Sink, logger zerolog.Logger, opts ...Option) (*Bridge, error) {
	if routes == nil {
		return nil, fmt.Errorf("route table cannot be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	b := &Bridge{
		routes: routes,
		sink:   sink,
		logger: logger.With().Str("component", "Bridge").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.NewMetrics(nil)
	}
	return b, nil
}

// Subscriptions returns the topic filters the transport must subscribe to.
func (b *Bridge) Subscriptions() []string {
	return b.routes.Subscriptions()
}

// Handle processes a single message synchronously. The returned error is
// informational only; the message has already been logged and dropped.
func (b *Bridge) Handle(ctx context.Context, topic string, payload []byte) error {
	req, err := b.prepare(ctx, topic, payload)
	if err != nil {
		return err
	}
	return b.write(ctx, topic, req)
}

// Transform is a messagepipeline.MessageTransformer. Rejected messages are
// logged here and skipped so the pipeline acknowledges them.
func (b *Bridge) Transform(ctx context.Context, msg *messagepipeline.Message) (*WriteRequest, bool, error) {
	req, err := b.prepare(ctx, msg.Attributes[messagepipeline.TopicAttribute], msg.Payload)
	if err != nil {
		return nil, true, nil
	}
	return req, false, nil
}

// Write is a messagepipeline.StreamProcessor.
func (b *Bridge) Write(ctx context.Context, original messagepipeline.Message, req *WriteRequest) error {
	return b.write(ctx, original.Attributes[messagepipeline.TopicAttribute], req)
}

func (b *Bridge) prepare(ctx context.Context, topic string, payload []byte) (*WriteRequest, error) {
	b.metrics.Received.Inc()

	req, err := BuildWriteRequest(b.routes, topic, payload)
	if err != nil {
		b.drop(topic, payload, err)
		return nil, err
	}

	if b.tags != nil {
		for k, v := range b.tags(ctx, req.Tags[LocationTag]) {
			if _, exists := req.Tags[k]; !exists {
				req.Tags[k] = v
			}
		}
	}
	return req, nil
}

func (b *Bridge) write(ctx context.Context, topic string, req *WriteRequest) error {
	start := time.Now()
	err := b.sink.WritePoint(ctx, *req)
	b.metrics.WriteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		b.metrics.Dropped.WithLabelValues(DropReason(err)).Inc()
		b.logger.Error().Err(err).
			Str("topic", topic).
			Str("measurement", req.Measurement).
			Interface("tags", req.Tags).
			Interface("fields", req.Fields).
			Msg("Failed to write point, dropping message.")
		return err
	}
	b.metrics.Written.Inc()
	b.logger.Debug().Str("topic", topic).Str("measurement", req.Measurement).Msg("Point written.")
	return nil
}

func (b *Bridge) drop(topic string, payload []byte, err error) {
	reason := DropReason(err)
	b.metrics.Dropped.WithLabelValues(reason).Inc()

	ev := b.logger.Warn()
	if reason == "unknown_route" {
		ev = b.logger.Error()
	}
	if t, perr := ParseTopic(topic); perr == nil {
		ev = ev.Str("route", t.Route).Str("device", t.Device)
	}
	ev.Err(err).
		Str("reason", reason).
		Str("topic", topic).
		Bytes("payload", payload).
		Msg("Dropping message.")
}
