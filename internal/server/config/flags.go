package config

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/civilforms/internal/flagx"
)

// parseFlags overlays command-line flags.
//
//	-a string    HTTP bind address (e.g. ":8080")
//	-g string    gRPC health bind address
//	-dd string   database driver: postgres or sqlite
//	-d string    database DSN
//	-s string    secret key for session tokens
//	-t duration  session token lifetime
//	-sd string   storage driver: s3 or minio
//	-b string    bucket
//	-e string    S3/MinIO endpoint
//	-r string    region
//	-u string    public base URL of the bucket
//	-m int       max upload size in bytes
//	-redis string  redis address for the shared rate limiter
//	-kafka string  comma-separated kafka brokers
//
// Unrelated arguments are filtered out with flagx.FilterArgs first.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-dd", "-d", "-s", "-t", "-sd", "-b", "-e", "-r", "-u", "-m", "-redis", "-kafka"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "HTTP address")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "gRPC health address")
	fs.StringVar(&cfg.DatabaseDriver, "dd", cfg.DatabaseDriver, "database driver")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	fs.DurationVar(&cfg.SessionTokenTTL, "t", cfg.SessionTokenTTL, "session token lifetime")
	fs.StringVar(&cfg.StorageDriver, "sd", cfg.StorageDriver, "storage driver")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "bucket")
	fs.StringVar(&cfg.S3Endpoint, "e", cfg.S3Endpoint, "storage endpoint")
	fs.StringVar(&cfg.S3Region, "r", cfg.S3Region, "region")
	fs.StringVar(&cfg.PublicBaseURL, "u", cfg.PublicBaseURL, "public base URL")
	fs.Int64Var(&cfg.MaxUploadSize, "m", cfg.MaxUploadSize, "max upload size in bytes")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address")
	brokers := fs.String("kafka", strings.Join(cfg.KafkaBrokers, ","), "kafka brokers")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	cfg.KafkaBrokers = splitList(*brokers)
	return nil
}
