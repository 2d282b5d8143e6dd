package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything the worker and API need at startup.
// Values come from an optional YAML file overlaid by environment
// variables; env always wins.
type Config struct {
	// MQTT transport
	MQTTBroker        string `yaml:"mqtt_broker"`
	MQTTPort          int    `yaml:"mqtt_port"`
	MQTTClientID      string `yaml:"mqtt_client_id"`
	MQTTUsername      string `yaml:"mqtt_username"`
	MQTTPassword      string `yaml:"mqtt_password"`
	MQTTTopicWildcard string `yaml:"mqtt_topic_wildcard"`
	MQTTTopicMode     string `yaml:"mqtt_topic_mode"` // "prefixed" or "simple"

	// Datastore
	DBHost string `yaml:"db_host"`
	DBUser string `yaml:"db_user"`
	DBPass string `yaml:"db_pass"`
	DBName string `yaml:"db_name"`

	// Worker behavior
	BalanceDecreaseMode     string `yaml:"balance_decrease_mode"` // "minute" or "hour"
	DataDir                 string `yaml:"data_dir"`
	OfflineSweepIntervalSec int    `yaml:"offline_sweep_interval_sec"`

	// API
	APIPort          int     `yaml:"api_port"`
	JWTSecret        string  `yaml:"jwt_secret"`
	JWTExpireMinutes int     `yaml:"jwt_expire_minutes"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps"`
	RateLimitBurst   int     `yaml:"rate_limit_burst"`

	LogLevel string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		MQTTBroker:          "broker.emqx.io",
		MQTTPort:            1883,
		MQTTClientID:        "siwatt-worker",
		MQTTTopicWildcard:   "/siwatt-mqtt/+/swm-raw/+",
		MQTTTopicMode:       "prefixed",
		DBHost:              "localhost:5432",
		DBUser:              "siwatt",
		DBName:              "siwatt",
		BalanceDecreaseMode: "minute",
		DataDir:             "data/buffer",
		APIPort:             8080,
		JWTExpireMinutes:    60,
		RateLimitRPS:        10,
		RateLimitBurst:      20,
		LogLevel:            "info",
	}
}

// Load builds the config from defaults, an optional YAML file
// (the path argument, or CONFIG_FILE), and environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	cfg.MQTTTopicMode = strings.ToLower(cfg.MQTTTopicMode)
	if cfg.MQTTTopicMode != "simple" {
		cfg.MQTTTopicMode = "prefixed"
	}
	cfg.BalanceDecreaseMode = strings.ToLower(cfg.BalanceDecreaseMode)
	if cfg.BalanceDecreaseMode != "hour" {
		cfg.BalanceDecreaseMode = "minute"
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	envStr(&c.MQTTBroker, "MQTT_BROKER")
	envInt(&c.MQTTPort, "MQTT_PORT")
	envStr(&c.MQTTClientID, "MQTT_CLIENT_ID")
	envStr(&c.MQTTUsername, "MQTT_USERNAME")
	envStr(&c.MQTTPassword, "MQTT_PASSWORD")
	envStr(&c.MQTTTopicWildcard, "MQTT_TOPIC_WILDCARD")
	envStr(&c.MQTTTopicMode, "MQTT_TOPIC_MODE")

	envStr(&c.DBHost, "DB_HOST")
	envStr(&c.DBUser, "DB_USER")
	envStr(&c.DBPass, "DB_PASS")
	envStr(&c.DBName, "DB_NAME")

	envStr(&c.BalanceDecreaseMode, "BALANCE_DECREASE_MODE")
	envStr(&c.DataDir, "DATA_DIR")
	envInt(&c.OfflineSweepIntervalSec, "OFFLINE_SWEEP_INTERVAL_SEC")

	envInt(&c.APIPort, "API_PORT")
	envStr(&c.JWTSecret, "JWT_SECRET")
	envInt(&c.JWTExpireMinutes, "JWT_EXPIRE_MINUTES")
	envFloat(&c.RateLimitRPS, "API_RATE_LIMIT_RPS")
	envInt(&c.RateLimitBurst, "API_RATE_LIMIT_BURST")

	envStr(&c.LogLevel, "LOG_LEVEL")
}

// DatabaseURL assembles a postgres connection string for pgx.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.DBUser, c.DBPass, c.DBHost, c.DBName)
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
