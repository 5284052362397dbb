package repository

import (
	"context"

	"github.com/martijn/sitecalm/internal/core/domain"
)

type RestoreJobRepository interface {
	Create(ctx context.Context, job *domain.RestoreJob) error
	FindByID(ctx context.Context, id string) (*domain.RestoreJob, error)
	Update(ctx context.Context, job *domain.RestoreJob) error
	// FindUnfinished returns jobs left pending or running, e.g. by a crash.
	FindUnfinished(ctx context.Context) ([]*domain.RestoreJob, error)
}
