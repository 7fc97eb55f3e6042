package submissions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/dbx"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

// SQLRepository works on both supported dialects; every query uses $N
// placeholders.
type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func checkTable(table string) error {
	if !slices.Contains(Tables, table) {
		return fmt.Errorf("%w: unknown table %q", common.ErrorValidation, table)
	}
	return nil
}

func (r *SQLRepository) Insert(ctx context.Context, table string, s models.Submission) error {
	if err := checkTable(table); err != nil {
		return err
	}

	var attachments any
	if len(s.Attachments) > 0 {
		b, err := json.Marshal(s.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		attachments = string(b)
	}

	fields := string(s.Fields)
	if fields == "" {
		fields = "{}"
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, email, company, fields, file_attachments, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`, table)

	if _, err := r.db.ExecContext(ctx, query,
		s.ID, s.Email, s.Company, fields, attachments, s.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, table, id string) (models.Submission, error) {
	if err := checkTable(table); err != nil {
		return models.Submission{}, err
	}

	query := fmt.Sprintf(
		`SELECT id, email, company, fields, file_attachments, created_at FROM %s
		 WHERE id = $1`, table)

	var (
		s           models.Submission
		fields      []byte
		attachments []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.Email, &s.Company, &fields, &attachments, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Submission{}, fmt.Errorf("%w: submission %s", common.ErrorNotFound, id)
		}
		return models.Submission{}, fmt.Errorf("db error: %w", err)
	}

	s.Fields = json.RawMessage(fields)
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &s.Attachments); err != nil {
			return models.Submission{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return s, nil
}
