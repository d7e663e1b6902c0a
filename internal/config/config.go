package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fisaks/smarthome/internal/router"
	"github.com/fisaks/smarthome/internal/store"
)

/* =========================
   Types
   ========================= */

type Config struct {
	// Bus
	Broker               string
	BrokerPort           int
	MQTTUsername         string
	MQTTPassword         string
	MQTTClientID         string
	CACert               string // empty disables TLS
	ConnectRetry         bool
	ConnectRetryInterval time.Duration
	ConnectTimeout       time.Duration

	// Alerts
	BotToken       string
	ChatID         string
	TelegramAPIURL string

	// State store
	StoreBackend        string
	FirebaseCredentials string
	FirestoreProjectID  string
	BoltPath            string

	HTTPAddr             string
	GasAlertThreshold    float64
	HandlerFailurePolicy router.FailurePolicy
}

/* =========================
   Helpers
   ========================= */

// BrokerURL is ssl://host:port when a CA certificate is configured,
// tcp://host:port otherwise.
func (c Config) BrokerURL() string {
	scheme := "tcp"
	if c.CACert != "" {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(c.Broker, strconv.Itoa(c.BrokerPort))
}

func (c Config) StoreConfig() store.Config {
	return store.Config{
		Backend:             c.StoreBackend,
		FirestoreProjectID:  c.FirestoreProjectID,
		FirebaseCredentials: c.FirebaseCredentials,
		BoltPath:            c.BoltPath,
	}
}

func (c Config) AlertsEnabled() bool { return c.BotToken != "" && c.ChatID != "" }

/* =========================
   Load + validate
   ========================= */

// Load reads an optional .env file (ENV_FILE overrides the path) into the
// process environment, then builds the config from the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds and validates a config from lookup, which has the
// signature of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	var errs multiErr
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	getInt := func(key string, def int) int {
		s := get(key, "")
		if s == "" {
			return def
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			errs.addf("%s: %q is not an integer", key, s)
		}
		return v
	}
	getFloat := func(key string, def float64) float64 {
		s := get(key, "")
		if s == "" {
			return def
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs.addf("%s: %q is not a number", key, s)
		}
		return v
	}
	getBool := func(key string, def bool) bool {
		s := get(key, "")
		if s == "" {
			return def
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			errs.addf("%s: %q is not a boolean", key, s)
		}
		return v
	}
	getDuration := func(key string, def time.Duration) time.Duration {
		s := get(key, "")
		if s == "" {
			return def
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			errs.addf("%s: %q is not a duration", key, s)
		}
		return v
	}

	cfg := &Config{
		Broker:       get("BROKER", ""),
		BrokerPort:   getInt("PORT", 8883),
		MQTTUsername: get("MQTT_USERNAME", ""),
		MQTTPassword: get("MQTT_PASSWORD", ""),
		MQTTClientID: get("MQTT_CLIENT_ID", "server-smart-home"),
		// CA_CERT="" in the environment is a deliberate opt-out of TLS.
		CACert:         "cert.pem",
		ConnectRetry:         getBool("MQTT_CONNECT_RETRY", false),
		ConnectRetryInterval: getDuration("MQTT_CONNECT_RETRY_INTERVAL", 10*time.Second),
		ConnectTimeout:       getDuration("MQTT_CONNECT_TIMEOUT", 10*time.Second),

		BotToken:       get("BOT_TOKEN", ""),
		ChatID:         get("CHAT_ID", ""),
		TelegramAPIURL: get("TELEGRAM_API_URL", "https://api.telegram.org"),

		StoreBackend:        strings.ToLower(get("STORE_BACKEND", store.BackendFirestore)),
		FirebaseCredentials: get("FIREBASE_CREDENTIALS", "../serviceAccountKey.json"),
		FirestoreProjectID:  get("FIRESTORE_PROJECT_ID", ""),
		BoltPath:            get("BOLT_PATH", "smarthome.db"),

		HTTPAddr:          get("HTTP_ADDR", ":5000"),
		GasAlertThreshold: getFloat("GAS_ALERT_THRESHOLD", router.DefaultGasThreshold),
	}
	if v, ok := lookup("CA_CERT"); ok {
		cfg.CACert = strings.TrimSpace(v)
	}

	policy, err := router.ParseFailurePolicy(strings.ToLower(get("HANDLER_FAILURE_POLICY", string(router.PolicyDrop))))
	if err != nil {
		errs.addf("HANDLER_FAILURE_POLICY: %v", err)
	}
	cfg.HandlerFailurePolicy = policy

	if len(errs) > 0 {
		return nil, errs
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs multiErr

	if c.Broker == "" {
		errs.add("BROKER is required")
	}
	if c.BrokerPort <= 0 || c.BrokerPort > 65535 {
		errs.addf("PORT must be 1..65535, got %d", c.BrokerPort)
	}
	if c.MQTTClientID == "" {
		errs.add("MQTT_CLIENT_ID cannot be empty")
	}
	if c.ConnectTimeout <= 0 {
		errs.add("MQTT_CONNECT_TIMEOUT must be > 0")
	}
	if (c.BotToken == "") != (c.ChatID == "") {
		errs.add("BOT_TOKEN and CHAT_ID must be set together")
	}
	switch c.StoreBackend {
	case store.BackendFirestore, store.BackendMemory:
	case store.BackendBolt:
		if c.BoltPath == "" {
			errs.add("BOLT_PATH is required for STORE_BACKEND=bolt")
		}
	default:
		errs.addf("STORE_BACKEND must be one of firestore, bolt, memory; got %q", c.StoreBackend)
	}
	if c.HTTPAddr == "" {
		errs.add("HTTP_ADDR cannot be empty")
	}
	if c.GasAlertThreshold < 0 {
		errs.add("GAS_ALERT_THRESHOLD cannot be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
