package submissions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLRepository(db), mock
}

const insertQuery = `(?s)^INSERT\s+INTO\s+model_requests\s*\(id,\s*email,\s*company,\s*fields,\s*file_attachments,\s*created_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)$`

const selectQuery = `(?s)^SELECT\s+id,\s*email,\s*company,\s*fields,\s*file_attachments,\s*created_at\s+FROM\s+model_requests\s+WHERE\s+id\s*=\s*\$1$`

func TestInsert_WithAttachments(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(insertQuery).
		WithArgs("id-1", "a@b.co", "Acme", `{"projectName":"North"}`,
			`[{"filename":"a.pdf","url":"https://x/a.pdf","size":3,"path":"3d-request/Acme/North/a.pdf"}]`, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), "model_requests", models.Submission{
		ID:      "id-1",
		Email:   "a@b.co",
		Company: "Acme",
		Fields:  json.RawMessage(`{"projectName":"North"}`),
		Attachments: []models.Attachment{
			{Filename: "a.pdf", URL: "https://x/a.pdf", Size: 3, Path: "3d-request/Acme/North/a.pdf"},
		},
		CreatedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_NoAttachmentsStoresNull(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(insertQuery).
		WithArgs("id-1", "a@b.co", "", "{}", nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), "model_requests", models.Submission{ID: "id-1", Email: "a@b.co", CreatedAt: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))

	err := repo.Insert(context.Background(), "model_requests", models.Submission{ID: "id-1"})
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())
}

func TestUnknownTableRejected(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	err := repo.Insert(context.Background(), "users; DROP TABLE x", models.Submission{})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = repo.Get(context.Background(), "users", "id")
	assert.ErrorIs(t, err, common.ErrorValidation)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "email", "company", "fields", "file_attachments", "created_at"}).
		AddRow("id-1", "a@b.co", "Acme", []byte(`{"projectName":"North"}`),
			[]byte(`[{"filename":"a.pdf","url":"u","size":3,"path":"p"}]`), at)
	mock.ExpectQuery(selectQuery).WithArgs("id-1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "model_requests", "id-1")
	require.NoError(t, err)

	want := models.Submission{
		ID:          "id-1",
		Email:       "a@b.co",
		Company:     "Acme",
		Fields:      json.RawMessage(`{"projectName":"North"}`),
		Attachments: []models.Attachment{{Filename: "a.pdf", URL: "u", Size: 3, Path: "p"}},
		CreatedAt:   at,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("submission mismatch (-want +got):\n%s", diff)
	}
}

func TestGet_NullAttachments(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows([]string{"id", "email", "company", "fields", "file_attachments", "created_at"}).
		AddRow("id-1", "a@b.co", "", []byte(`{}`), nil, time.Now())
	mock.ExpectQuery(selectQuery).WithArgs("id-1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "model_requests", "id-1")
	require.NoError(t, err)
	assert.Nil(t, got.Attachments)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(selectQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "model_requests", "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGet_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(selectQuery).WithArgs("id-1").WillReturnError(errors.New("boom"))

	_, err := repo.Get(context.Background(), "model_requests", "id-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.Contains(t, err.Error(), "boom")
}
