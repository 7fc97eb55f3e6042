// Package repomanager provides a concrete RepositoryManager for the
// supported SQL dialects, wiring together repository constructors and
// database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/civilforms/internal/dbx"
	"github.com/dmitrijs2005/civilforms/internal/server/migrations"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/events"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/submissions"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/uploadedfiles"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLRepositoryManager vends repository implementations for one dialect
// and exposes a schema migration hook.
type SQLRepositoryManager struct {
	dialect dbx.Dialect
}

// Submissions returns a submissions.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Submissions(db dbx.DBTX) submissions.Repository {
	return submissions.NewSQLRepository(db)
}

// Events returns an events.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Events(db dbx.DBTX) events.Repository {
	return events.NewSQLRepository(db)
}

// UploadedFiles returns an uploadedfiles.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) UploadedFiles(db dbx.DBTX) uploadedfiles.Repository {
	return uploadedfiles.NewSQLRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations of the manager's
// dialect and runs them against the provided database connection.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.dialect.GooseDialect()); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, string(m.dialect)); err != nil {
		return fmt.Errorf("migrate %s: %w", m.dialect, err)
	}
	return nil
}

// NewSQLRepositoryManager constructs a RepositoryManager for dialect.
func NewSQLRepositoryManager(dialect dbx.Dialect) RepositoryManager {
	return &SQLRepositoryManager{dialect: dialect}
}

// Open opens a connection pool with the driver registered for dialect and
// checks that the database answers.
func Open(ctx context.Context, dialect dbx.Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == dbx.SQLite {
		// A single connection keeps in-memory databases shared.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}
