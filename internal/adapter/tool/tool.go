// Package tool runs the external programs of the post-restore plan
// (composer, php artisan, npm, pm2) with a wall-clock limit per step.
package tool

import (
	"context"

	"github.com/martijn/sitecalm/internal/core/domain"
)

// ExternalTool runs one step and reports how it ended. Implementations never
// return an error: failures, timeouts and start errors are all encoded in the
// StepResult so a pipeline can move on to the next step.
type ExternalTool interface {
	Run(ctx context.Context, step domain.PostRestoreStep) domain.StepResult
}

// ProcessRecorder persists a record for every step the Runner launches.
type ProcessRecorder interface {
	StartStep(ctx context.Context, runID string, step domain.PostRestoreStep, pid int) (*domain.Process, error)
	FinishStep(ctx context.Context, process *domain.Process, result domain.StepResult) error
}

type runIDKey struct{}

// WithRunID tags ctx so that steps run under it are grouped in process records.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
