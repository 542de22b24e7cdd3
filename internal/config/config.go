// Package config provides centralized configuration management for the pipeline.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Store    StoreConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Upload   UploadConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// StoreConfig holds settings for the table store.
type StoreConfig struct {
	// URL is a SQLite file path (or :memory:) or a postgres:// connection
	// string (default: data/NyflightsDB.db)
	URL string `env:"STORE_URL" envAlt:"DATABASE_URL" default:"data/NyflightsDB.db"`

	// Table is the name results are saved under when the metadata does not
	// name one (default: nyflights)
	Table string `env:"STORE_TABLE" default:"nyflights"`

	// BatchSize is the number of rows per insert statement (default: 500)
	BatchSize int `env:"STORE_BATCH_SIZE" default:"500"`

	// MaxConns is the maximum number of pooled connections (default: 4)
	MaxConns int `env:"STORE_MAX_CONNS" default:"4"`
}

// PipelineConfig holds the inputs and limits of a pipeline run.
type PipelineConfig struct {
	// DataPath is the CSV dataset to clean
	DataPath string `env:"PIPELINE_DATA_PATH" envAlt:"DATA_PATH"`

	// MetadataPath is the column-metadata sheet (.xlsx, .csv or .yaml)
	MetadataPath string `env:"PIPELINE_METADATA_PATH" envAlt:"META_PATH"`

	// MetadataSheet selects the worksheet of an .xlsx metadata file (default: first sheet)
	MetadataSheet string `env:"PIPELINE_METADATA_SHEET"`

	// Coercion is what happens to values that cannot be cast: fail or null (default: fail)
	Coercion string `env:"PIPELINE_COERCION" default:"fail"`

	// CSVEncoding is the dataset encoding: utf-8, latin1 or windows-1252 (default: utf-8)
	CSVEncoding string `env:"PIPELINE_CSV_ENCODING" default:"utf-8"`

	// MaxConcurrent is the maximum number of parallel runs (default: 2)
	MaxConcurrent int `env:"PIPELINE_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"PIPELINE_MAX_WAIT" default:"30s"`

	// Timeout is the maximum duration of a single run (default: 10m)
	Timeout time.Duration `env:"PIPELINE_TIMEOUT" default:"10m"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, runs can be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 10m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"10m"`
}

// UploadConfig holds multipart upload settings for the pipeline endpoint.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed request size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key checks on POST /api/pipeline (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies are CIDRs allowed to set X-Real-IP and X-Forwarded-For
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// IsPostgres reports whether the store URL points at PostgreSQL.
func (c *StoreConfig) IsPostgres() bool {
	return hasPrefixFold(c.URL, "postgres://") || hasPrefixFold(c.URL, "postgresql://")
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
