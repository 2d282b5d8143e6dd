package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every key Load reads so host environment cannot leak
// into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE",
		"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD",
		"MQTT_TOPIC_WILDCARD", "MQTT_TOPIC_MODE",
		"DB_HOST", "DB_USER", "DB_PASS", "DB_NAME",
		"BALANCE_DECREASE_MODE", "DATA_DIR", "OFFLINE_SWEEP_INTERVAL_SEC",
		"API_PORT", "JWT_SECRET", "JWT_EXPIRE_MINUTES",
		"API_RATE_LIMIT_RPS", "API_RATE_LIMIT_BURST", "LOG_LEVEL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "broker.emqx.io" || cfg.MQTTPort != 1883 {
		t.Errorf("mqtt defaults wrong: %s:%d", cfg.MQTTBroker, cfg.MQTTPort)
	}
	if cfg.MQTTTopicMode != "prefixed" {
		t.Errorf("topic mode = %q, want prefixed", cfg.MQTTTopicMode)
	}
	if cfg.BalanceDecreaseMode != "minute" {
		t.Errorf("balance mode = %q, want minute", cfg.BalanceDecreaseMode)
	}
	if cfg.APIPort != 8080 || cfg.JWTExpireMinutes != 60 {
		t.Errorf("api defaults wrong: port=%d expire=%d", cfg.APIPort, cfg.JWTExpireMinutes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTT_BROKER", "mqtt.internal")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("DB_HOST", "db.internal:5432")
	t.Setenv("BALANCE_DECREASE_MODE", "HOUR")
	t.Setenv("MQTT_TOPIC_MODE", "SIMPLE")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "mqtt.internal" || cfg.MQTTPort != 8883 {
		t.Errorf("mqtt overrides wrong: %s:%d", cfg.MQTTBroker, cfg.MQTTPort)
	}
	if cfg.DBHost != "db.internal:5432" {
		t.Errorf("db host = %q", cfg.DBHost)
	}
	// Modes are normalized to lowercase.
	if cfg.BalanceDecreaseMode != "hour" {
		t.Errorf("balance mode = %q, want hour", cfg.BalanceDecreaseMode)
	}
	if cfg.MQTTTopicMode != "simple" {
		t.Errorf("topic mode = %q, want simple", cfg.MQTTTopicMode)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("rate limit rps = %v, want 2.5", cfg.RateLimitRPS)
	}
}

func TestLoadInvalidModesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("BALANCE_DECREASE_MODE", "weekly")
	t.Setenv("MQTT_TOPIC_MODE", "fancy")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BalanceDecreaseMode != "minute" {
		t.Errorf("balance mode = %q, want minute fallback", cfg.BalanceDecreaseMode)
	}
	if cfg.MQTTTopicMode != "prefixed" {
		t.Errorf("topic mode = %q, want prefixed fallback", cfg.MQTTTopicMode)
	}
}

func TestLoadYAMLFileAndEnvPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "mqtt_broker: file.broker\ndb_name: filedb\napi_port: 9000\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	// Env must win over the file.
	t.Setenv("DB_NAME", "envdb")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "file.broker" {
		t.Errorf("broker = %q, want file.broker", cfg.MQTTBroker)
	}
	if cfg.APIPort != 9000 {
		t.Errorf("api port = %d, want 9000", cfg.APIPort)
	}
	if cfg.DBName != "envdb" {
		t.Errorf("db name = %q, want envdb", cfg.DBName)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := Config{DBUser: "u", DBPass: "p", DBHost: "h:5432", DBName: "d"}
	want := "postgres://u:p@h:5432/d"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL = %q, want %q", got, want)
	}
}
