// Package events stores security events written by the security logger.
package events

import (
	"context"

	"github.com/dmitrijs2005/civilforms/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, e models.SecurityEvent) error
}
