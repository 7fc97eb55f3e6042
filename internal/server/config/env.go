package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/civilforms/internal/flagx"
)

// loadDotenv is a test seam.
var loadDotenv = godotenv.Load

// parseEnv loads the dotenv file named by -env (default ".env"; a missing
// default file is not an error) and then overlays every variable that is
// set.
func parseEnv(cfg *Config, args []string, lookup func(string) (string, bool)) error {
	path := flagx.EnvFilePath(args)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := loadDotenv(path); err != nil && (explicit || !errors.Is(err, fs.ErrNotExist)) {
		return fmt.Errorf("load %s: %w", path, err)
	}

	e := envReader{lookup: lookup}
	e.str("HTTP_ADDR", &cfg.HTTPAddr)
	e.str("GRPC_ADDR", &cfg.GRPCAddr)
	e.str("DATABASE_DRIVER", &cfg.DatabaseDriver)
	e.str("DATABASE_DSN", &cfg.DatabaseDSN)
	e.str("SECRET_KEY", &cfg.SecretKey)
	e.duration("SESSION_TOKEN_TTL", &cfg.SessionTokenTTL)
	e.str("STORAGE_DRIVER", &cfg.StorageDriver)
	e.str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	e.str("S3_SECRET_KEY", &cfg.S3SecretKey)
	e.str("S3_BUCKET", &cfg.S3Bucket)
	e.str("S3_REGION", &cfg.S3Region)
	e.str("S3_ENDPOINT", &cfg.S3Endpoint)
	e.boolean("S3_USE_PATH_STYLE", &cfg.S3UsePathStyle)
	e.str("PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	e.duration("PRESIGN_TTL", &cfg.PresignTTL)
	e.bytes("MAX_UPLOAD_SIZE", &cfg.MaxUploadSize)
	e.integer("RATE_LIMIT_ATTEMPTS", &cfg.RateLimitAttempts)
	e.duration("RATE_LIMIT_WINDOW", &cfg.RateLimitWindow)
	e.str("REDIS_ADDR", &cfg.RedisAddr)
	e.list("KAFKA_BROKERS", &cfg.KafkaBrokers)
	e.str("KAFKA_TOPIC", &cfg.KafkaTopic)
	e.integer("SECURITY_LOG_BATCH_SIZE", &cfg.SecurityLogBatchSize)
	e.duration("SECURITY_LOG_FLUSH_INTERVAL", &cfg.SecurityLogFlushInterval)
	e.list("CORS_ORIGINS", &cfg.CORSOrigins)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	return e.err
}

// envReader collects the first parse error so every setter stays one line.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	return e.lookup(key)
}

func (e *envReader) fail(key, v string, err error) {
	e.err = fmt.Errorf("env %s=%q: %w", key, v, err)
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = splitList(v)
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) bytes(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
