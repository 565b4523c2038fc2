package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "atlas.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ATLAS_PORT")
	setString(&cfg.Server.CORSOrigin, "ATLAS_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.Postgres.Schema, "ATLAS_PG_SCHEMA")
	setInt32(&cfg.Postgres.MaxConns, "ATLAS_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ATLAS_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ATLAS_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ATLAS_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ATLAS_PG_HEALTH_CHECK")
	setDuration(&cfg.Postgres.QueryTimeout, "ATLAS_PG_QUERY_TIMEOUT")
	setString(&cfg.Postgres.TokenFile, "ATLAS_PG_TOKEN_FILE")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "ATLAS_LLM_MODEL")
	setInt(&cfg.LiteLLM.MaxTokens, "ATLAS_LLM_MAX_TOKENS")
	setString(&cfg.AgentRun.URL, "ATLAS_AGENT_URL")
	setString(&cfg.AgentRun.Token, "ATLAS_AGENT_TOKEN")
	setDuration(&cfg.AgentRun.ConnectTimeout, "ATLAS_AGENT_CONNECT_TIMEOUT")
	setString(&cfg.Logging.Level, "ATLAS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ATLAS_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "ATLAS_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ATLAS_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "ATLAS_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "ATLAS_CACHE_TTL")
	setInt(&cfg.Render.MaxTableRows, "ATLAS_RENDER_MAX_ROWS")
	setInt(&cfg.Render.CellWidth, "ATLAS_RENDER_CELL_WIDTH")
	setInt(&cfg.Render.SQLPreviewLen, "ATLAS_RENDER_SQL_PREVIEW")
	setFloat64(&cfg.Alerts.CPIThreshold, "ATLAS_ALERT_CPI")
	setFloat64(&cfg.Alerts.SPIThreshold, "ATLAS_ALERT_SPI")
	setFloat64(&cfg.Alerts.ContingencyThreshold, "ATLAS_ALERT_CONTINGENCY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.Schema == "" {
		return errors.New("postgres.schema is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Render.MaxTableRows < 1 {
		return errors.New("render.max_table_rows must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
