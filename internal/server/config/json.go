package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/flagx"
	"github.com/dmitrijs2005/civilforms/internal/timex"
)

// JsonConfig is the on-disk shape of the -c/-config file. Durations accept
// "1m30s" or integer nanoseconds. Fields left out of the file keep their
// current values.
type JsonConfig struct {
	HTTPAddr                 *string         `json:"http_addr"`
	GRPCAddr                 *string         `json:"grpc_addr"`
	DatabaseDriver           *string         `json:"database_driver"`
	DatabaseDSN              *string         `json:"database_dsn"`
	SecretKey                *string         `json:"secret_key"`
	SessionTokenTTL          *timex.Duration `json:"session_token_ttl"`
	StorageDriver            *string         `json:"storage_driver"`
	S3AccessKey              *string         `json:"s3_access_key"`
	S3SecretKey              *string         `json:"s3_secret_key"`
	S3Bucket                 *string         `json:"s3_bucket"`
	S3Region                 *string         `json:"s3_region"`
	S3Endpoint               *string         `json:"s3_endpoint"`
	S3UsePathStyle           *bool           `json:"s3_use_path_style"`
	PublicBaseURL            *string         `json:"public_base_url"`
	PresignTTL               *timex.Duration `json:"presign_ttl"`
	MaxUploadSize            *int64          `json:"max_upload_size"`
	RateLimitAttempts        *int            `json:"rate_limit_attempts"`
	RateLimitWindow          *timex.Duration `json:"rate_limit_window"`
	RedisAddr                *string         `json:"redis_addr"`
	KafkaBrokers             []string        `json:"kafka_brokers"`
	KafkaTopic               *string         `json:"kafka_topic"`
	SecurityLogBatchSize     *int            `json:"security_log_batch_size"`
	SecurityLogFlushInterval *timex.Duration `json:"security_log_flush_interval"`
	CORSOrigins              []string        `json:"cors_origins"`
	ShutdownTimeout          *timex.Duration `json:"shutdown_timeout"`
}

// parseJSON overlays the file named by -c/-config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var c JsonConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&cfg.HTTPAddr, c.HTTPAddr)
	set(&cfg.GRPCAddr, c.GRPCAddr)
	set(&cfg.DatabaseDriver, c.DatabaseDriver)
	set(&cfg.DatabaseDSN, c.DatabaseDSN)
	set(&cfg.SecretKey, c.SecretKey)
	setDuration(&cfg.SessionTokenTTL, c.SessionTokenTTL)
	set(&cfg.StorageDriver, c.StorageDriver)
	set(&cfg.S3AccessKey, c.S3AccessKey)
	set(&cfg.S3SecretKey, c.S3SecretKey)
	set(&cfg.S3Bucket, c.S3Bucket)
	set(&cfg.S3Region, c.S3Region)
	set(&cfg.S3Endpoint, c.S3Endpoint)
	set(&cfg.S3UsePathStyle, c.S3UsePathStyle)
	set(&cfg.PublicBaseURL, c.PublicBaseURL)
	setDuration(&cfg.PresignTTL, c.PresignTTL)
	set(&cfg.MaxUploadSize, c.MaxUploadSize)
	set(&cfg.RateLimitAttempts, c.RateLimitAttempts)
	setDuration(&cfg.RateLimitWindow, c.RateLimitWindow)
	set(&cfg.RedisAddr, c.RedisAddr)
	if c.KafkaBrokers != nil {
		cfg.KafkaBrokers = c.KafkaBrokers
	}
	set(&cfg.KafkaTopic, c.KafkaTopic)
	set(&cfg.SecurityLogBatchSize, c.SecurityLogBatchSize)
	setDuration(&cfg.SecurityLogFlushInterval, c.SecurityLogFlushInterval)
	if c.CORSOrigins != nil {
		cfg.CORSOrigins = c.CORSOrigins
	}
	setDuration(&cfg.ShutdownTimeout, c.ShutdownTimeout)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
