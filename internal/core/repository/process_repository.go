package repository

import (
	"context"

	"github.com/martijn/sitecalm/internal/api/util"
	"github.com/martijn/sitecalm/internal/core/domain"
)

// ProcessFilter embeds ListFilter for generic query/order/pagination
type ProcessFilter struct {
	util.ListFilter
}

type ProcessRepository interface {
	Create(ctx context.Context, process *domain.Process) error
	FindByID(ctx context.Context, id int64) (*domain.Process, error)
	// FindByCommandID returns every step recorded under one restore run, oldest first.
	FindByCommandID(ctx context.Context, commandID string) ([]*domain.Process, error)
	Update(ctx context.Context, process *domain.Process) error
	List(ctx context.Context, filter ProcessFilter) ([]*domain.Process, error)
	Count(ctx context.Context, filter ProcessFilter) (int, error)

	// Find all running processes (for recovery after an unclean shutdown)
	FindRunning(ctx context.Context) ([]*domain.Process, error)
}
