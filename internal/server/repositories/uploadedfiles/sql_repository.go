package uploadedfiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/dbx"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Record(ctx context.Context, rec models.UploadRecord) error {
	query :=
		`INSERT INTO uploaded_files (path, session_id, form_type, size, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (path) DO UPDATE SET
		   session_id = excluded.session_id,
		   form_type = excluded.form_type,
		   size = excluded.size,
		   created_at = excluded.created_at`

	if _, err := r.db.ExecContext(ctx, query,
		rec.Path, rec.SessionID, rec.FormType, rec.Size, rec.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, path string) (models.UploadRecord, error) {
	query :=
		`SELECT path, session_id, form_type, size, created_at FROM uploaded_files
		 WHERE path = $1`

	var rec models.UploadRecord
	err := r.db.QueryRowContext(ctx, query, path).
		Scan(&rec.Path, &rec.SessionID, &rec.FormType, &rec.Size, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UploadRecord{}, fmt.Errorf("%w: %s", common.ErrorNotFound, path)
		}
		return models.UploadRecord{}, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *SQLRepository) Delete(ctx context.Context, path, sessionID string) (bool, error) {
	query := `DELETE FROM uploaded_files WHERE path = $1 AND session_id = $2`

	res, err := r.db.ExecContext(ctx, query, path, sessionID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
