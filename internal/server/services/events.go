package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/civilforms/internal/dbx"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/repomanager"
)

// EventSink writes a batch of security events in one transaction.
type EventSink struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewEventSink(db *sql.DB, rm repomanager.RepositoryManager) *EventSink {
	return &EventSink{db: db, repomanager: rm}
}

func (s *EventSink) InsertBatch(ctx context.Context, batch []models.SecurityEvent) error {
	if len(batch) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Events(tx)
		for _, e := range batch {
			if err := repo.Insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}
