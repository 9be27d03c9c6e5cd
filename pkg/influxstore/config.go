package influxstore

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// InfluxConfig holds the connection settings for the InfluxDB HTTP API.
type InfluxConfig struct {
	// URL is the base address of the server, e.g. "http://influxdb:8086".
	URL      string
	Username string
	Password string
	// Database receives every write and is provisioned on startup.
	Database string
	// Timeout bounds every HTTP request to the server.
	Timeout time.Duration
	// RetentionPolicy is created together with the database.
	RetentionPolicy RetentionPolicy
}

// Env constants for InfluxDB settings.
const (
	InfluxURL            = "INFLUXDB_URL"
	InfluxAddress        = "INFLUXDB_ADDRESS"
	InfluxPort           = "INFLUXDB_PORT"
	InfluxUser           = "INFLUXDB_USER"
	InfluxPassword       = "INFLUXDB_PASSWORD"
	InfluxDatabase       = "INFLUXDB_DATABASE"
	InfluxTimeoutSeconds = "INFLUXDB_TIMEOUT_SECONDS"
)

// LoadInfluxConfigWithEnv loads InfluxDB settings from the environment.
// Unset values default to a local docker-compose style deployment.
func LoadInfluxConfigWithEnv() *InfluxConfig {
	cfg := &InfluxConfig{
		Username:        envOr(InfluxUser, "root"),
		Password:        envOr(InfluxPassword, "root"),
		Database:        envOr(InfluxDatabase, "home_db"),
		Timeout:         10 * time.Second,
		RetentionPolicy: DefaultRetentionPolicy,
	}

	cfg.URL = os.Getenv(InfluxURL)
	if cfg.URL == "" {
		port := 8086
		if p := os.Getenv(InfluxPort); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				port = n
			} else {
				log.Printf("influxstore: error parsing port: %s, using default", err)
			}
		}
		cfg.URL = fmt.Sprintf("http://%s", net.JoinHostPort(envOr(InfluxAddress, "influxdb"), strconv.Itoa(port)))
	}

	if ts := os.Getenv(InfluxTimeoutSeconds); ts != "" {
		d, err := time.ParseDuration(ts + "s")
		if err == nil {
			cfg.Timeout = d
		} else {
			log.Printf("influxstore: error parsing timeout seconds: %s, using default", err)
		}
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
