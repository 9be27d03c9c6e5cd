// Command bridge subscribes to sensor topics on an MQTT broker and writes
// every reading into InfluxDB.
//
// All configuration comes from the environment; see the Load...WithEnv
// functions in pkg/mqttconverter, pkg/influxstore and pkg/cache. In addition:
//
//	BRIDGE_ROUTES_FILE       YAML route table replacing the built-in routes
//	BRIDGE_DEVICE_TAGS_FILE  YAML map of device to extra tags, checked before Redis
//	BRIDGE_HTTP_ADDR         address for /healthz and /metrics (disabled if empty)
//	LOG_LEVEL                zerolog level, default "info"
//	LOG_FORMAT               "console" for human-readable logs, JSON otherwise
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-mqttinflux/pkg/cache"
	"github.com/illmade-knight/go-mqttinflux/pkg/enrichment"
	"github.com/illmade-knight/go-mqttinflux/pkg/influxstore"
	"github.com/illmade-knight/go-mqttinflux/pkg/messagepipeline"
	"github.com/illmade-knight/go-mqttinflux/pkg/metrics"
	"github.com/illmade-knight/go-mqttinflux/pkg/microservice"
	"github.com/illmade-knight/go-mqttinflux/pkg/mqttconverter"
	"github.com/illmade-knight/go-mqttinflux/pkg/telemetry"
	"github.com/rs/zerolog"
)

const (
	deviceCacheSize  = 1024
	deviceCacheTTL   = 5 * time.Minute
	deviceTagTimeout = 500 * time.Millisecond
	shutdownTimeout  = 10 * time.Second
)

func main() {
	logger := newLogger()
	logger.Info().Msg("bridge: start")

	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("bridge: exiting")
		os.Exit(1)
	}
	logger.Info().Msg("bridge: stopped")
}

func run(logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routes, err := loadRoutes()
	if err != nil {
		return err
	}

	influxCfg := influxstore.LoadInfluxConfigWithEnv()
	influxClient, err := influxstore.NewProductionInfluxClient(influxCfg, logger)
	if err != nil {
		return fmt.Errorf("could not connect to InfluxDB: %w", err)
	}
	writer, err := influxstore.NewInfluxWriter(influxClient, influxCfg, logger)
	if err != nil {
		_ = influxClient.Close()
		return fmt.Errorf("could not provision InfluxDB: %w", err)
	}
	defer writer.Close()

	registry := metrics.NewRegistry()
	opts := []telemetry.Option{telemetry.WithMetrics(metrics.NewMetrics(registry))}

	tagStore, err := newDeviceTagStore(ctx, os.Getenv("BRIDGE_DEVICE_TAGS_FILE"), cache.LoadRedisConfigWithEnv(), registry, logger)
	if err != nil {
		return err
	}
	if tagStore != nil {
		defer tagStore.Close()
		tagSource, err := enrichment.NewDeviceTagSource(tagStore.Fetch, deviceTagTimeout, logger)
		if err != nil {
			return err
		}
		opts = append(opts, telemetry.WithTagSource(tagSource))
	}

	bridge, err := telemetry.NewBridge(routes, writer, logger, opts...)
	if err != nil {
		return err
	}

	mqttCfg := mqttconverter.LoadMQTTClientConfigWithEnv()
	mqttCfg.Topics = bridge.Subscriptions()
	consumer, err := mqttconverter.NewMqttConsumer(mqttCfg, logger)
	if err != nil {
		return err
	}

	// One worker: messages reach the sink in the order the broker sent them.
	service, err := messagepipeline.NewStreamingService[telemetry.WriteRequest](
		messagepipeline.StreamingServiceConfig{NumWorkers: 1},
		consumer,
		bridge.Transform,
		bridge.Write,
		logger,
	)
	if err != nil {
		return err
	}

	if addr := os.Getenv("BRIDGE_HTTP_ADDR"); addr != "" {
		server := microservice.NewBaseServer(logger, addr, registry)
		server.AddHealthCheck("mqtt", func(context.Context) error {
			if !consumer.IsConnected() {
				return fmt.Errorf("not connected to %s", mqttCfg.BrokerURL)
			}
			return nil
		})
		server.AddHealthCheck("influxdb", writer.Ping)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("could not connect to MQTT: %w", err)
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return service.Stop(shutdownCtx)
}

func loadRoutes() (*telemetry.RouteTable, error) {
	path := os.Getenv("BRIDGE_ROUTES_FILE")
	if path == "" {
		return telemetry.DefaultRouteTable(), nil
	}
	return telemetry.LoadRouteTable(path)
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("LOG_FORMAT") == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
