/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Storage backend selection for uploaded media.
type StorageBackend string

const (
	StorageFilesystem StorageBackend = "fs"
	StorageS3         StorageBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment     string
	HTTPBind        string
	HTTPPort        int
	BaseURL         string // Public base URL (e.g., http://192.168.1.20:8080)
	DBBackend       DatabaseBackend
	DBDSN           string
	MediaRoot       string
	StorageBackend  StorageBackend
	FFmpegBin       string
	RTMPBase        string // Ingest base URL; the stream key is appended as the path
	JWTSigningKey   string
	AdminUser       string
	AdminPassword   string
	MaxUploadSizeMB int // Multipart upload ceiling (MB)

	// Orchestration timings. The advance delays are deliberately two-tier:
	// errors back off harder than natural track ends.
	RestartBackoff    time.Duration // single mode auto-restart delay
	RestartSettle     time.Duration // stop-to-start gap inside restart()
	AdvanceDelay      time.Duration // playlist advance after a natural end
	ErrorAdvanceDelay time.Duration // playlist advance after an item failure

	// Health sampling
	HealthInterval    time.Duration
	AnalyticsInterval time.Duration
	AlertRingSize     int

	// Scheduled pipeline recycle (empty disables it)
	RecycleRule string

	// S3 object storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN/CloudFront URL
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Sink lease / event relay configuration
	SinkLeaseEnabled bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	InstanceID       string
	NATSURL          string

	// Webhook notifications (empty URL disables them)
	WebhookURL    string
	WebhookSecret string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnvAny([]string{"YTSTREAM_ENV", "YTS_ENV"}, "development"),
		HTTPBind:        getEnvAny([]string{"YTSTREAM_HTTP_BIND", "YTS_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:        getEnvIntAny([]string{"YTSTREAM_HTTP_PORT", "YTS_HTTP_PORT"}, 8080),
		BaseURL:         getEnvAny([]string{"YTSTREAM_BASE_URL", "YTS_BASE_URL"}, ""),
		DBBackend:       DatabaseBackend(getEnvAny([]string{"YTSTREAM_DB_BACKEND", "YTS_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:           getEnvAny([]string{"YTSTREAM_DB_DSN", "YTS_DB_DSN"}, "ytstream.db"),
		MediaRoot:       getEnvAny([]string{"YTSTREAM_MEDIA_ROOT", "YTS_MEDIA_ROOT"}, "./media"),
		StorageBackend:  StorageBackend(getEnvAny([]string{"YTSTREAM_STORAGE_BACKEND", "YTS_STORAGE_BACKEND"}, string(StorageFilesystem))),
		FFmpegBin:       getEnvAny([]string{"YTSTREAM_FFMPEG_BIN", "YTS_FFMPEG_BIN"}, "ffmpeg"),
		RTMPBase:        getEnvAny([]string{"YTSTREAM_RTMP_BASE", "YTS_RTMP_BASE"}, "rtmp://a.rtmp.youtube.com/live2"),
		JWTSigningKey:   getEnvAny([]string{"YTSTREAM_JWT_SIGNING_KEY", "YTS_JWT_SIGNING_KEY"}, ""),
		AdminUser:       getEnvAny([]string{"YTSTREAM_ADMIN_USER", "YTS_ADMIN_USER"}, "admin"),
		AdminPassword:   getEnvAny([]string{"YTSTREAM_ADMIN_PASSWORD", "YTS_ADMIN_PASSWORD"}, ""),
		MaxUploadSizeMB: getEnvIntAny([]string{"YTSTREAM_MAX_UPLOAD_SIZE_MB", "YTS_MAX_UPLOAD_SIZE_MB"}, 512),

		RestartBackoff:    getEnvDurationAny([]string{"YTSTREAM_RESTART_BACKOFF", "YTS_RESTART_BACKOFF"}, 5*time.Second),
		RestartSettle:     getEnvDurationAny([]string{"YTSTREAM_RESTART_SETTLE", "YTS_RESTART_SETTLE"}, 2*time.Second),
		AdvanceDelay:      getEnvDurationAny([]string{"YTSTREAM_ADVANCE_DELAY", "YTS_ADVANCE_DELAY"}, time.Second),
		ErrorAdvanceDelay: getEnvDurationAny([]string{"YTSTREAM_ERROR_ADVANCE_DELAY", "YTS_ERROR_ADVANCE_DELAY"}, 2*time.Second),

		HealthInterval:    getEnvDurationAny([]string{"YTSTREAM_HEALTH_INTERVAL", "YTS_HEALTH_INTERVAL"}, 30*time.Second),
		AnalyticsInterval: getEnvDurationAny([]string{"YTSTREAM_ANALYTICS_INTERVAL", "YTS_ANALYTICS_INTERVAL"}, 60*time.Second),
		AlertRingSize:     getEnvIntAny([]string{"YTSTREAM_ALERT_RING", "YTS_ALERT_RING"}, 100),

		RecycleRule: getEnvAny([]string{"YTSTREAM_RECYCLE_RRULE", "YTS_RECYCLE_RRULE"}, ""),

		// S3 object storage configuration
		S3AccessKeyID:     getEnvAny([]string{"YTSTREAM_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"YTSTREAM_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"YTSTREAM_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"YTSTREAM_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"YTSTREAM_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"YTSTREAM_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"YTSTREAM_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"YTSTREAM_TRACING_ENABLED", "YTS_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"YTSTREAM_OTLP_ENDPOINT", "YTS_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"YTSTREAM_TRACING_SAMPLE_RATE", "YTS_TRACING_SAMPLE_RATE"}, 1.0),

		// Sink lease / event relay configuration
		SinkLeaseEnabled: getEnvBoolAny([]string{"YTSTREAM_SINK_LEASE_ENABLED", "YTS_SINK_LEASE_ENABLED"}, false),
		RedisAddr:        getEnvAny([]string{"YTSTREAM_REDIS_ADDR", "YTS_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:    getEnvAny([]string{"YTSTREAM_REDIS_PASSWORD", "YTS_REDIS_PASSWORD"}, ""),
		RedisDB:          getEnvIntAny([]string{"YTSTREAM_REDIS_DB", "YTS_REDIS_DB"}, 0),
		InstanceID:       getEnvAny([]string{"YTSTREAM_INSTANCE_ID", "YTS_INSTANCE_ID"}, ""),
		NATSURL:          getEnvAny([]string{"YTSTREAM_NATS_URL", "YTS_NATS_URL"}, ""),

		WebhookURL:    getEnvAny([]string{"YTSTREAM_WEBHOOK_URL", "YTS_WEBHOOK_URL"}, ""),
		WebhookSecret: getEnvAny([]string{"YTSTREAM_WEBHOOK_SECRET", "YTS_WEBHOOK_SECRET"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.StorageBackend != StorageFilesystem && cfg.StorageBackend != StorageS3 {
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}

	if cfg.StorageBackend == StorageS3 && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("YTSTREAM_S3_BUCKET must be provided when the s3 storage backend is selected")
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("YTSTREAM_DB_DSN or YTS_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("YTSTREAM_JWT_SIGNING_KEY or YTS_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.AdminPassword == "" || strings.EqualFold(cfg.AdminPassword, "changeme") {
			return nil, fmt.Errorf("YTSTREAM_ADMIN_PASSWORD must be set to a non-default value in production")
		}
	}

	if cfg.RestartBackoff <= 0 || cfg.RestartSettle <= 0 || cfg.AdvanceDelay <= 0 || cfg.ErrorAdvanceDelay <= 0 {
		return nil, fmt.Errorf("orchestration delays must be positive durations")
	}

	return cfg, nil
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 512 * 1024 * 1024
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// HTTPAddr returns the bind address for the HTTP listener.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny returns the first set duration environment variable value from keys, or def.
// Bare integers are interpreted as seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
