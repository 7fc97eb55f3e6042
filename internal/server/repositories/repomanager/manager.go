package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/civilforms/internal/dbx"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/events"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/submissions"
	"github.com/dmitrijs2005/civilforms/internal/server/repositories/uploadedfiles"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Submissions(db dbx.DBTX) submissions.Repository
	Events(db dbx.DBTX) events.Repository
	UploadedFiles(db dbx.DBTX) uploadedfiles.Repository
}
