package mqttconverter

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// MQTTClientConfig holds the connection settings for the Paho MQTT client and
// the topic filters the consumer subscribes to.
type MQTTClientConfig struct {
	// BrokerURL is the full URL of the broker, e.g. "tcp://mosquitto:1883" or
	// "tls://mqtt.example.com:8883".
	BrokerURL string
	// Topics are subscribed to every time a session is established.
	Topics []string
	// QoS used for every subscription.
	QoS byte
	// ClientID identifies this client to the broker.
	ClientID string
	// UniqueClientID appends a random suffix to ClientID so several bridges
	// can share one broker account.
	UniqueClientID bool
	Username       string
	Password       string
	// KeepAlive is the interval at which the client pings the broker.
	KeepAlive time.Duration
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
	// ReconnectWaitMax caps the back-off between reconnection attempts after
	// the session is lost.
	ReconnectWaitMax time.Duration
	// CACertFile is an optional CA bundle for verifying the broker.
	CACertFile string
	// ClientCertFile and ClientKeyFile enable mTLS when both are set.
	ClientCertFile string
	ClientKeyFile  string
	// InsecureSkipVerify skips TLS certificate verification.
	InsecureSkipVerify bool
}

// Env constants for MQTT settings.
const (
	MqttBrokerURL             = "MQTT_BROKER_URL"
	MqttAddress               = "MQTT_ADDRESS"
	MqttPort                  = "MQTT_PORT"
	MqttUser                  = "MQTT_USER"
	MqttPassword              = "MQTT_PASSWORD"
	MqttClientID              = "MQTT_CLIENT_ID"
	MqttClientIDUnique        = "MQTT_CLIENT_ID_UNIQUE"
	MqttQoS                   = "MQTT_QOS"
	MqttSkipVerify            = "MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds      = "MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds = "MQTT_CONNECT_TIMEOUT_SECONDS"
	MqttCACertFile            = "MQTT_CA_CERT_FILE"
	MqttClientCertFile        = "MQTT_CLIENT_CERT_FILE"
	MqttClientKeyFile         = "MQTT_CLIENT_KEY_FILE"
)

const (
	defaultAddress  = "mosquitto"
	defaultPort     = 1883
	defaultClientID = "MQTT2InfluxBridge2"
	defaultUser     = "mqttuser"
	defaultPassword = "mqttpassword"
)

// LoadMQTTClientConfigWithEnv loads the MQTT configuration from environment
// variables, falling back to defaults for anything unset or unparsable.
// Topics are not read from the environment; they come from the route table.
func LoadMQTTClientConfigWithEnv() *MQTTClientConfig {
	cfg := &MQTTClientConfig{
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMax: 2 * time.Minute,
		ClientID:         defaultClientID,
		Username:         defaultUser,
		Password:         defaultPassword,
		CACertFile:       os.Getenv(MqttCACertFile),
		ClientCertFile:   os.Getenv(MqttClientCertFile),
		ClientKeyFile:    os.Getenv(MqttClientKeyFile),
	}
	// Set but empty means connect without credentials.
	if user, ok := os.LookupEnv(MqttUser); ok {
		cfg.Username = user
	}
	if password, ok := os.LookupEnv(MqttPassword); ok {
		cfg.Password = password
	}
	if id := os.Getenv(MqttClientID); id != "" {
		cfg.ClientID = id
	}
	cfg.UniqueClientID = os.Getenv(MqttClientIDUnique) == "true"
	cfg.InsecureSkipVerify = os.Getenv(MqttSkipVerify) == "true"

	cfg.BrokerURL = os.Getenv(MqttBrokerURL)
	if cfg.BrokerURL == "" {
		address := os.Getenv(MqttAddress)
		if address == "" {
			address = defaultAddress
		}
		port := defaultPort
		if p := os.Getenv(MqttPort); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				port = n
			} else {
				log.Printf("mqttconverter: error parsing port: %s, using default", err)
			}
		}
		cfg.BrokerURL = fmt.Sprintf("tcp://%s", net.JoinHostPort(address, strconv.Itoa(port)))
	}

	if q := os.Getenv(MqttQoS); q != "" {
		n, err := strconv.Atoi(q)
		if err == nil && n >= 0 && n <= 2 {
			cfg.QoS = byte(n)
		} else {
			log.Printf("mqttconverter: invalid QoS %q, using 0", q)
		}
	}

	if ka := os.Getenv(MqttKeepAliveSeconds); ka != "" {
		s, err := time.ParseDuration(ka + "s")
		if err == nil {
			cfg.KeepAlive = s
		} else {
			log.Printf("mqttconverter: error parsing keepAlive seconds: %s, using default", err)
		}
	}
	if ct := os.Getenv(MqttConnectTimeoutSeconds); ct != "" {
		s, err := time.ParseDuration(ct + "s")
		if err == nil {
			cfg.ConnectTimeout = s
		} else {
			log.Printf("mqttconverter: error parsing connect timeout seconds: %s, using default", err)
		}
	}

	return cfg
}
