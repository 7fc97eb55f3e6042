// Package server wires the intake backend together: database and
// migrations, object storage, security gating, the HTTP API and the gRPC
// health endpoint, and runs them until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/dmitrijs2005/civilforms/internal/dbx"
	"github.com/dmitrijs2005/civilforms/internal/forms"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/security"
	"github.com/dmitrijs2005/civilforms/internal/server/config"
	"github.com/dmitrijs2005/civilforms/internal/server/httpapi"
	"github.com/dmitrijs2005/civilforms/internal/server/notify"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/civilforms/internal/server/services"
	"github.com/dmitrijs2005/civilforms/internal/storage"

	gs "github.com/dmitrijs2005/civilforms/internal/server/grpc"
)

type publisher interface {
	forms.Publisher
	Close() error
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	redis     *redis.Client
	seclog    *security.SecurityLogger
	publisher publisher
	router    http.Handler
}

// newObjectStore is a seam for tests that run without a bucket.
var newObjectStore = func(ctx context.Context, c *config.Config) (storage.ObjectStore, error) {
	if c.StorageDriver == config.StorageMinio {
		host, secure, err := minioEndpoint(c.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:      host,
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			Bucket:        c.S3Bucket,
			Region:        c.S3Region,
			UseSSL:        secure,
			PublicBaseURL: c.PublicBaseURL,
			PresignTTL:    c.PresignTTL,
		})
	}
	return storage.NewS3Store(ctx, storage.S3Config{
		Region:        c.S3Region,
		Bucket:        c.S3Bucket,
		AccessKey:     c.S3AccessKey,
		SecretKey:     c.S3SecretKey,
		Endpoint:      c.S3Endpoint,
		UsePathStyle:  c.S3UsePathStyle,
		PublicBaseURL: c.PublicBaseURL,
		PresignTTL:    c.PresignTTL,
	})
}

// minioEndpoint turns an endpoint URL into the host:port minio-go expects.
func minioEndpoint(raw string) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false, nil
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	}
	return "", false, fmt.Errorf("unsupported minio endpoint scheme %q", u.Scheme)
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	dialect, err := dbx.ParseDialect(c.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	db, err := repomanager.Open(ctx, dialect, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	rm := repomanager.NewSQLRepositoryManager(dialect)
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close(ctx)
		return nil, err
	}

	store, err := newObjectStore(ctx, c)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	var limiter security.Limiter
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		limiter = security.NewRedisLimiter(app.redis, c.RateLimitAttempts, c.RateLimitWindow)
	} else {
		limiter = security.NewMemoryLimiter(c.RateLimitAttempts, c.RateLimitWindow)
	}

	if len(c.KafkaBrokers) > 0 {
		app.publisher = notify.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
	} else {
		app.publisher = notify.Nop{}
	}

	app.seclog = security.NewSecurityLogger(services.NewEventSink(db, rm), logger,
		c.SecurityLogBatchSize, c.SecurityLogFlushInterval)

	controller := forms.NewController(forms.Deps{
		Store:     services.NewSubmissionStore(db, rm),
		Limiter:   limiter,
		Monitor:   security.NewMonitor(logger),
		Events:    app.seclog,
		Publisher: app.publisher,
		Logger:    logger,
	})

	uploadService := services.NewUploadService(db, rm, store, app.seclog, logger)
	uploadService.AttachGateway(storage.NewGateway(store, logger,
		storage.WithPrivilegedDeleter(uploadService),
		storage.WithMaxFileSize(c.MaxUploadSize),
		storage.WithProgress(storage.NoProgress{}),
	))

	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(httpapi.Deps{
		Uploads:       uploadService,
		Forms:         controller,
		SecretKey:     []byte(c.SecretKey),
		SessionTTL:    c.SessionTokenTTL,
		MaxUploadSize: c.MaxUploadSize,
		Logger:        logger,
	})
	app.router = httpapi.NewRouter(handler, c.CORSOrigins, logger)

	return app, nil
}

// Handler returns the HTTP API.
func (app *App) Handler() http.Handler { return app.router }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.HTTPAddr, app.router, app.logger, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.db.PingContext, 10*time.Second)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or the process receives a stop signal,
// then flushes buffered security events and releases resources.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.seclog.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}

// Close releases the connections NewApp opened.
func (app *App) Close(ctx context.Context) {
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Warn(ctx, "publisher close failed", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close failed", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(ctx, "db close failed", "error", err)
		}
	}
}
