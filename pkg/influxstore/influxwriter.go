// Package influxstore is the InfluxDB (1.x HTTP API) sink for the bridge. It
// provisions the target database on startup and writes one point per call.
package influxstore

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-mqttinflux/pkg/telemetry"
	client "github.com/influxdata/influxdb/client/v2"
	"github.com/rs/zerolog"
)

// Client is the subset of client.Client the sink depends on.
type Client interface {
	Ping(timeout time.Duration) (time.Duration, string, error)
	Write(bp client.BatchPoints) error
	Query(q client.Query) (*client.Response, error)
	Close() error
}

// InfluxWriter implements telemetry.Sink on top of the InfluxDB HTTP client.
type InfluxWriter struct {
	client   Client
	database string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewProductionInfluxClient creates an HTTP client and checks the server is
// reachable.
func NewProductionInfluxClient(cfg *InfluxConfig, logger zerolog.Logger) (client.Client, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client for %s: %w", cfg.URL, err)
	}
	_, version, err := c.Ping(cfg.Timeout)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to reach InfluxDB at %s: %w", cfg.URL, err)
	}
	logger.Info().Str("url", cfg.URL).Str("version", version).Msg("Connected to InfluxDB.")
	return c, nil
}

// NewInfluxWriter provisions cfg.Database and returns a writer bound to it.
func NewInfluxWriter(c Client, cfg *InfluxConfig, logger zerolog.Logger) (*InfluxWriter, error) {
	if c == nil {
		return nil, fmt.Errorf("influx client cannot be nil")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("influx database name is required")
	}
	logger = logger.With().Str("component", "InfluxWriter").Str("database", cfg.Database).Logger()
	if err := Provision(c, cfg.Database, cfg.RetentionPolicy, logger); err != nil {
		return nil, err
	}
	return &InfluxWriter{
		client:   c,
		database: cfg.Database,
		timeout:  cfg.Timeout,
		logger:   logger,
	}, nil
}

// WritePoint stores req as a single point without an explicit timestamp, so
// the server records the ingestion time.
func (w *InfluxWriter) WritePoint(ctx context.Context, req telemetry.WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// InfluxDB rejects points without fields; say so before the round trip.
	if len(req.Fields) == 0 {
		return fmt.Errorf("point for measurement %s has no fields", req.Measurement)
	}
	for k, v := range req.Fields {
		switch v.(type) {
		case float64, string, bool:
		default:
			return fmt.Errorf("field %q has unsupported type %T", k, v)
		}
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: w.database})
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	pt, err := client.NewPoint(req.Measurement, req.Tags, map[string]interface{}(req.Fields))
	if err != nil {
		return fmt.Errorf("invalid point for measurement %s: %w", req.Measurement, err)
	}
	bp.AddPoint(pt)

	if err := w.client.Write(bp); err != nil {
		return fmt.Errorf("influx write to %s failed: %w", w.database, err)
	}
	return nil
}

// Ping reports whether the server answers.
func (w *InfluxWriter) Ping(_ context.Context) error {
	_, _, err := w.client.Ping(w.timeout)
	return err
}

// Close releases the underlying HTTP client.
func (w *InfluxWriter) Close() error {
	w.logger.Info().Msg("Closing InfluxDB client...")
	return w.client.Close()
}
