package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/core/repository"
)

type restoreJobRepository struct {
	db *DB
}

func NewRestoreJobRepository(db *DB) repository.RestoreJobRepository {
	return &restoreJobRepository{db: db}
}

// restoreJobRow is the stored shape; the summary is kept as JSON text.
type restoreJobRow struct {
	domain.RestoreJob
	SummaryJSON sql.NullString `db:"summary"`
}

func (r *restoreJobRepository) Create(ctx context.Context, job *domain.RestoreJob) error {
	summary, err := marshalSummary(job.Summary)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO restore_job (id, filename, mode, status, summary, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.Filename,
		job.Mode,
		job.Status,
		summary,
		NullString(job.Error),
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create restore job: %w", err)
	}
	return nil
}

func (r *restoreJobRepository) FindByID(ctx context.Context, id string) (*domain.RestoreJob, error) {
	var row restoreJobRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, filename, mode, status, summary, error, created_at, started_at, finished_at
		FROM restore_job
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("restore job %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find restore job: %w", err)
	}
	return row.toDomain()
}

func (r *restoreJobRepository) Update(ctx context.Context, job *domain.RestoreJob) error {
	summary, err := marshalSummary(job.Summary)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE restore_job
		SET status = ?, summary = ?, error = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`,
		job.Status,
		summary,
		NullString(job.Error),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update restore job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("restore job %s: %w", job.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *restoreJobRepository) FindUnfinished(ctx context.Context) ([]*domain.RestoreJob, error) {
	var rows []restoreJobRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, filename, mode, status, summary, error, created_at, started_at, finished_at
		FROM restore_job
		WHERE status IN (?, ?)
		ORDER BY created_at ASC
	`, domain.RestoreJobPending, domain.RestoreJobRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished restore jobs: %w", err)
	}

	jobs := make([]*domain.RestoreJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (row *restoreJobRow) toDomain() (*domain.RestoreJob, error) {
	job := row.RestoreJob
	if row.SummaryJSON.Valid && row.SummaryJSON.String != "" {
		var summary domain.RestoreSummary
		if err := json.Unmarshal([]byte(row.SummaryJSON.String), &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal restore summary: %w", err)
		}
		job.Summary = &summary
	}
	return &job, nil
}

func marshalSummary(summary *domain.RestoreSummary) (sql.NullString, error) {
	if summary == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal restore summary: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
