package events

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/civilforms/internal/dbx"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Insert(ctx context.Context, e models.SecurityEvent) error {
	query :=
		`INSERT INTO security_events (timestamp, event_type, event_data, suspicious, user_agent, url)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	data := string(e.EventData)
	if data == "" {
		data = "{}"
	}

	if _, err := r.db.ExecContext(ctx, query,
		e.Timestamp, e.EventType, data, e.Suspicious, e.UserAgent, e.URL); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
