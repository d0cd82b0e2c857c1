// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Convert  ConvertConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for large downloads)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests. It must cover a
	// full import plus reconcile round trip (default: 5m).
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL/PostGIS connection string (required)
	// Supports both DATABASE_URL and DATABASE_DSN env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DATABASE_DSN" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// PipelineConfig holds staging and reconciliation settings.
type PipelineConfig struct {
	// TargetTable is the schema-qualified relation merged rows land in
	// (default: public.site_features)
	TargetTable string `env:"TARGET_TABLE" default:"public.site_features"`

	// StagingTable is the schema-qualified relation uploads are imported
	// into before reconciliation (default: public.staging_site_features)
	StagingTable string `env:"STAGING_TABLE" default:"public.staging_site_features"`

	// IDColumn is the target identity column excluded from the merge and
	// used by id-filtered exports (default: id)
	IDColumn string `env:"ID_COLUMN" default:"id"`

	// MaxUploadBytes is the maximum allowed archive size in bytes (default: 50MB)
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" default:"52428800"`

	// IngestWaitTimeout is how long an upload waits for exclusive staging
	// access before it is rejected as busy (default: 30s)
	IngestWaitTimeout time.Duration `env:"INGEST_WAIT_TIMEOUT" default:"30s"`
}

// ConvertConfig holds settings for the external geometry conversion tool.
type ConvertConfig struct {
	// Ogr2ogrPath is the conversion binary to invoke (default: ogr2ogr, resolved via PATH)
	Ogr2ogrPath string `env:"OGR2OGR_PATH" default:"ogr2ogr"`

	// Timeout bounds a single conversion run in either direction (default: 3m)
	Timeout time.Duration `env:"CONVERT_TIMEOUT" default:"3m"`

	// TargetSRS is the coordinate system forced on import and export (default: EPSG:4326)
	TargetSRS string `env:"TARGET_SRS" default:"EPSG:4326"`

	// GeometryColumn is the geometry column name forced on import (default: geom)
	GeometryColumn string `env:"GEOMETRY_COLUMN" default:"geom"`

	// SourceEncoding is the attribute encoding forced in both directions (default: UTF-8)
	SourceEncoding string `env:"SOURCE_ENCODING" default:"UTF-8"`

	// WorkspaceRoot is the parent directory for per-request scratch
	// workspaces; empty means the OS temp directory
	WorkspaceRoot string `env:"WORKSPACE_ROOT"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKey is the shared secret required in the X-API-Key header.
	// When empty, authentication is disabled.
	APIKey string `env:"API_KEY"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// AuthEnabled reports whether request authentication is configured.
func (c *SecurityConfig) AuthEnabled() bool {
	return c.APIKey != ""
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
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
