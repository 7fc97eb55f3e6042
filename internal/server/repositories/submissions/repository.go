// Package submissions stores accepted form rows, one table per form type.
package submissions

import (
	"context"

	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, table string, s models.Submission) error
	Get(ctx context.Context, table, id string) (models.Submission, error)
}

// Tables lists the submission tables created by the migrations. Table names
// are interpolated into queries, so nothing outside this list is accepted.
var Tables = []string{
	"model_requests",
	"model_quotes",
	"takeoff_requests",
	"takeoff_quotes",
	"client_intakes",
	"career_applications",
	"pricing_quotes",
}
