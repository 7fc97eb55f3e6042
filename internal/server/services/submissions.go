package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/civilforms/internal/server/models"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/repomanager"
)

// SubmissionStore persists form rows through the submissions repository.
type SubmissionStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewSubmissionStore(db *sql.DB, rm repomanager.RepositoryManager) *SubmissionStore {
	return &SubmissionStore{db: db, repomanager: rm}
}

func (s *SubmissionStore) Insert(ctx context.Context, table string, sub models.Submission) error {
	return s.repomanager.Submissions(s.db).Insert(ctx, table, sub)
}

func (s *SubmissionStore) Get(ctx context.Context, table, id string) (models.Submission, error) {
	return s.repomanager.Submissions(s.db).Get(ctx, table, id)
}
