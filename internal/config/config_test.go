package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/router"
	"github.com/fisaks/smarthome/internal/state"
	"github.com/fisaks/smarthome/internal/store"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"BROKER": "broker.example.com"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BrokerPort != 8883 || cfg.MQTTClientID != "server-smart-home" || cfg.CACert != "cert.pem" {
		t.Fatalf("bus defaults: %+v", cfg)
	}
	if cfg.BrokerURL() != "ssl://broker.example.com:8883" {
		t.Fatalf("broker url %q", cfg.BrokerURL())
	}
	if cfg.StoreBackend != "firestore" || cfg.FirebaseCredentials != "../serviceAccountKey.json" {
		t.Fatalf("store defaults: %+v", cfg)
	}
	if cfg.HTTPAddr != ":5000" || cfg.GasAlertThreshold != 2000 || cfg.HandlerFailurePolicy != router.PolicyDrop {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.ConnectTimeout != 10*time.Second || cfg.ConnectRetry || cfg.ConnectRetryInterval != 10*time.Second {
		t.Fatalf("connect defaults: %+v", cfg)
	}
	if cfg.AlertsEnabled() {
		t.Fatal("alerts must be disabled without a token")
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"BROKER":                      "10.0.0.5",
		"PORT":                        "1883",
		"CA_CERT":                     "",
		"MQTT_USERNAME":               "home",
		"MQTT_PASSWORD":               "secret",
		"BOT_TOKEN":                   "123:abc",
		"CHAT_ID":                     "42",
		"STORE_BACKEND":               "BOLT",
		"BOLT_PATH":                   "/var/lib/smarthome.db",
		"GAS_ALERT_THRESHOLD":         "1500.5",
		"HANDLER_FAILURE_POLICY":      "exit",
		"MQTT_CONNECT_RETRY":          "true",
		"MQTT_CONNECT_TIMEOUT":        "3s",
		"MQTT_CONNECT_RETRY_INTERVAL": "2s",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BrokerURL() != "tcp://10.0.0.5:1883" {
		t.Fatalf("broker url %q", cfg.BrokerURL())
	}
	if cfg.StoreBackend != "bolt" || cfg.StoreConfig().BoltPath != "/var/lib/smarthome.db" {
		t.Fatalf("store %+v", cfg.StoreConfig())
	}
	if cfg.GasAlertThreshold != 1500.5 || cfg.HandlerFailurePolicy != router.PolicyExit {
		t.Fatalf("router settings %+v", cfg)
	}
	if !cfg.AlertsEnabled() || !cfg.ConnectRetry || cfg.ConnectTimeout != 3*time.Second || cfg.ConnectRetryInterval != 2*time.Second {
		t.Fatalf("flags %+v", cfg)
	}
}

type alertCounter struct{ n int }

func (a *alertCounter) Notify(context.Context, string) error {
	a.n++
	return nil
}

func TestZeroGasThresholdReachesRouter(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"BROKER":              "b",
		"GAS_ALERT_THRESHOLD": "0",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	alerts := &alertCounter{}
	rt := router.New(router.Deps{
		State:        state.NewHomeStateStore(store.NewMemory()),
		Notifier:     alerts,
		GasThreshold: cfg.GasAlertThreshold,
	})
	rt.OnMessage(context.Background(), home.TopicGas, []byte("500"))
	if alerts.n != 1 {
		t.Fatalf("threshold 0 must alert for level 500, got %d alerts", alerts.n)
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"PORT":          "70000",
		"BOT_TOKEN":     "only-token",
		"STORE_BACKEND": "mongo",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"BROKER is required", "PORT must be", "BOT_TOKEN and CHAT_ID", "STORE_BACKEND"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"BROKER":                 "b",
		"PORT":                   "eighty",
		"GAS_ALERT_THRESHOLD":    "lots",
		"HANDLER_FAILURE_POLICY": "panic",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"PORT", "GAS_ALERT_THRESHOLD", "HANDLER_FAILURE_POLICY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "BROKER=mqtt.local\nPORT=1884\nHTTP_ADDR=:6000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	// godotenv never overrides variables that are already set
	t.Setenv("HTTP_ADDR", ":7000")
	// registered so t.Setenv restores them after godotenv writes them
	t.Setenv("BROKER", "")
	t.Setenv("PORT", "")
	os.Unsetenv("BROKER")
	os.Unsetenv("PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "mqtt.local" || cfg.BrokerPort != 1884 {
		t.Fatalf("env file not applied: %+v", cfg)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Fatalf("environment must win over file, got %q", cfg.HTTPAddr)
	}
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("BROKER", "mqtt.local")
	if _, err := Load(); err != nil {
		t.Fatalf("missing env file must be ignored: %v", err)
	}
}
