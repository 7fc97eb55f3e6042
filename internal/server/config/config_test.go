package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Equal(t, "postgres", c.DatabaseDriver)
	assert.Equal(t, StorageS3, c.StorageDriver)
	assert.Equal(t, int64(100<<20), c.MaxUploadSize)
	assert.Equal(t, 3, c.RateLimitAttempts)
	assert.Equal(t, time.Minute, c.RateLimitWindow)
	assert.Equal(t, 10, c.SecurityLogBatchSize)
	assert.Equal(t, 5*time.Second, c.SecurityLogFlushInterval)
	require.NoError(t, c.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeTempJSON(t, map[string]any{
		"http_addr":         ":9000",
		"database_dsn":      "from-json",
		"session_token_ttl": "2h",
		"rate_limit_window": "90s",
		"kafka_brokers":     []string{"k1:9092"},
		"kafka_topic":       "submissions",
		"s3_use_path_style": false,
	})
	env := envMap(map[string]string{
		"HTTP_ADDR":           ":7000",
		"SECRET_KEY":          "from-env",
		"DATABASE_DSN":        "from-env",
		"RATE_LIMIT_ATTEMPTS": "5",
		"CORS_ORIGINS":        "https://a.example, https://b.example",
	})
	args := []string{"-config", path, "-a", ":6000", "-m", "1024", "-verbose"}

	cfg, err := load(args, env)
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.HTTPAddr, "flags win")
	assert.Equal(t, "from-json", cfg.DatabaseDSN, "json beats env")
	assert.Equal(t, "from-env", cfg.SecretKey, "env beats defaults")
	assert.Equal(t, 2*time.Hour, cfg.SessionTokenTTL)
	assert.Equal(t, 90*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 5, cfg.RateLimitAttempts)
	assert.Equal(t, int64(1024), cfg.MaxUploadSize)
	assert.Equal(t, []string{"k1:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.S3UsePathStyle)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, ":50051", cfg.GRPCAddr, "untouched default")
}

func TestLoad_DotenvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prod.env"), []byte("CIVILFORMS_TEST_BUCKET=from-dotenv\n"), 0o600))
	t.Setenv("CIVILFORMS_TEST_BUCKET", "")
	os.Unsetenv("CIVILFORMS_TEST_BUCKET")

	_, err := load([]string{"-env", "prod.env"}, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", os.Getenv("CIVILFORMS_TEST_BUCKET"))

	_, err = load([]string{"-env", "missing.env"}, noEnv)
	require.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := load(nil, envMap(map[string]string{"RATE_LIMIT_WINDOW": "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_WINDOW")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ not json`), 0o600))
	_, err = load([]string{"-c", bad}, noEnv)
	require.Error(t, err)

	_, err = load([]string{"-sd", "ftp"}, noEnv)
	require.ErrorContains(t, err, `unsupported storage driver "ftp"`)
}

func TestValidate(t *testing.T) {
	var c Config
	c.LoadDefaults()
	c.DatabaseDriver = "oracle"
	c.SecretKey = ""
	c.KafkaBrokers = []string{"k:9092"}
	c.StorageDriver = StorageMinio
	c.S3Endpoint = ""

	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"oracle", "secret key", "kafka topic", "minio endpoint"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseFlags(t *testing.T) {
	var c Config
	c.LoadDefaults()
	want := c
	want.HTTPAddr = "127.0.0.1:9090"
	want.GRPCAddr = ":7777"
	want.DatabaseDriver = "sqlite"
	want.DatabaseDSN = "file:dev.db"
	want.SecretKey = "secret"
	want.SessionTokenTTL = 30 * time.Minute
	want.StorageDriver = StorageMinio
	want.S3Bucket = "bucket"
	want.S3Endpoint = "minio:9000"
	want.S3Region = "us-west-1"
	want.PublicBaseURL = "https://cdn.example"
	want.MaxUploadSize = 42
	want.RedisAddr = "redis:6379"
	want.KafkaBrokers = []string{"a:9092", "b:9092"}

	err := parseFlags(&c, []string{
		"-a", "127.0.0.1:9090", "-g", ":7777", "-dd", "sqlite", "-d", "file:dev.db",
		"-s", "secret", "-t", "30m", "-sd", "minio", "-b", "bucket", "-e", "minio:9000",
		"-r", "us-west-1", "-u", "https://cdn.example", "-m", "42",
		"-redis", "redis:6379", "-kafka=a:9092,b:9092",
	})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, c))
}
