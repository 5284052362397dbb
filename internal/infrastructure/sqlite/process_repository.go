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

const processColumns = `id, command_id, command, pid, status, output, error, return_code, start_time, end_time, type, args`

type processRepository struct {
	db *DB
}

func NewProcessRepository(db *DB) repository.ProcessRepository {
	return &processRepository{db: db}
}

// processRow is the stored shape; args are kept as a JSON object.
type processRow struct {
	domain.Process
	ArgsJSON string `db:"args"`
}

func (r *processRepository) Create(ctx context.Context, process *domain.Process) error {
	args, err := marshalArgs(process.Args)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO process (command_id, command, pid, status, output, error, return_code, start_time, end_time, type, args)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		process.CommandID,
		process.Command,
		NullInt(process.PID),
		process.Status,
		NullString(process.Output),
		NullString(process.Error),
		NullInt(process.ReturnCode),
		process.StartTime,
		nullTime(process.EndTime),
		process.Type,
		args,
	)
	if err != nil {
		return fmt.Errorf("failed to create process: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	process.ID = id
	return nil
}

func (r *processRepository) FindByID(ctx context.Context, id int64) (*domain.Process, error) {
	var row processRow
	err := r.db.GetContext(ctx, &row, `SELECT `+processColumns+` FROM process WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("process %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find process: %w", err)
	}
	return row.toDomain()
}

func (r *processRepository) FindByCommandID(ctx context.Context, commandID string) ([]*domain.Process, error) {
	processes, err := r.selectProcesses(ctx, `SELECT `+processColumns+` FROM process WHERE command_id = ? ORDER BY id ASC`, commandID)
	if err != nil {
		return nil, err
	}
	if len(processes) == 0 {
		return nil, fmt.Errorf("run %s: %w", commandID, repository.ErrNotFound)
	}
	return processes, nil
}

func (r *processRepository) Update(ctx context.Context, process *domain.Process) error {
	args, err := marshalArgs(process.Args)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE process
		SET pid = ?, status = ?, output = ?, error = ?, return_code = ?, end_time = ?, args = ?
		WHERE id = ?
	`,
		NullInt(process.PID),
		process.Status,
		NullString(process.Output),
		NullString(process.Error),
		NullInt(process.ReturnCode),
		nullTime(process.EndTime),
		args,
		process.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update process: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("process %d: %w", process.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *processRepository) List(ctx context.Context, filter repository.ProcessFilter) ([]*domain.Process, error) {
	q := newListQuery(filter.Conditions)
	query := `SELECT ` + processColumns + ` FROM process` +
		q.whereSQL() +
		orderSQL(filter.Sort, "start_time DESC, id DESC") +
		q.pageSQL(filter.ListFilter)

	return r.selectProcesses(ctx, query, q.args...)
}

func (r *processRepository) Count(ctx context.Context, filter repository.ProcessFilter) (int, error) {
	q := newListQuery(filter.Conditions)

	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM process`+q.whereSQL(), q.args...); err != nil {
		return 0, fmt.Errorf("failed to count processes: %w", err)
	}
	return count, nil
}

func (r *processRepository) FindRunning(ctx context.Context) ([]*domain.Process, error) {
	return r.selectProcesses(ctx, `SELECT `+processColumns+` FROM process WHERE status = ? ORDER BY start_time ASC`, domain.ProcessStatusRunning)
}

func (r *processRepository) selectProcesses(ctx context.Context, query string, args ...interface{}) ([]*domain.Process, error) {
	var rows []processRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	processes := make([]*domain.Process, 0, len(rows))
	for i := range rows {
		process, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		processes = append(processes, process)
	}
	return processes, nil
}

func (row *processRow) toDomain() (*domain.Process, error) {
	process := row.Process
	if row.ArgsJSON != "" {
		if err := json.Unmarshal([]byte(row.ArgsJSON), &process.Args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal process args: %w", err)
		}
	}
	return &process, nil
}

func marshalArgs(args map[string]interface{}) (string, error) {
	if args == nil {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to marshal process args: %w", err)
	}
	return string(data), nil
}
