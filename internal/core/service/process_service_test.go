package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/internal/infrastructure/sqlite"
)

func newProcessService(t *testing.T) *ProcessService {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProcessService(sqlite.NewProcessRepository(db), zerolog.Nop())
}

func TestProcessServiceRecordsSteps(t *testing.T) {
	s := newProcessService(t)
	ctx := context.Background()

	step := domain.PostRestoreStep{
		Label:   "NPM Install",
		Command: domain.NewCommand([]string{"npm", "install"}, "/srv/site/frontend"),
		Timeout: 10 * time.Minute,
	}
	process, err := s.StartStep(ctx, "run-1", step, 4242)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessStatusRunning, process.Status)
	assert.Equal(t, "npm install", process.Command)

	result := domain.NewStepResult("NPM Install", domain.StepStatusFailed, 3*time.Second).WithCode(1)
	result.Error = "npm ERR! code ERESOLVE"
	require.NoError(t, s.FinishStep(ctx, process, result))

	stored, err := s.GetProcessesByCommandID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.ProcessStatusFailed, stored[0].Status)
	assert.Equal(t, domain.ProcessTypePostRestoreStep, stored[0].Type)
	require.NotNil(t, stored[0].ReturnCode)
	assert.Equal(t, 1, *stored[0].ReturnCode)
	require.NotNil(t, stored[0].Error)
	assert.Equal(t, "npm ERR! code ERESOLVE", *stored[0].Error)
	require.NotNil(t, stored[0].PID)
	assert.Equal(t, 4242, *stored[0].PID)
	assert.Equal(t, "NPM Install", stored[0].Args["step"])
}

func TestProcessServiceRecordTask(t *testing.T) {
	s := newProcessService(t)
	ctx := context.Background()

	s.RecordTask(ctx, "snap-1", "snapshot website_backup_20250101_000000.tar.gz", domain.ProcessTypeSnapshot, nil, nil)
	s.RecordTask(ctx, "clean-1", "cleanup_backups", domain.ProcessTypeCleanupBackups, nil, errors.New("permission denied"))

	ok, err := s.GetProcessesByCommandID(ctx, "snap-1")
	require.NoError(t, err)
	require.Len(t, ok, 1)
	assert.Equal(t, domain.ProcessStatusSuccess, ok[0].Status)

	bad, err := s.GetProcessesByCommandID(ctx, "clean-1")
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, domain.ProcessStatusFailed, bad[0].Status)
	assert.Equal(t, "permission denied", *bad[0].Error)
}

func TestProcessServiceFailInterrupted(t *testing.T) {
	s := newProcessService(t)
	ctx := context.Background()

	step := domain.PostRestoreStep{Label: "Next Build", Command: domain.NewCommand([]string{"npm", "run", "build"}, "/srv"), Timeout: time.Minute}
	_, err := s.StartStep(ctx, "run-2", step, 1)
	require.NoError(t, err)
	_, err = s.StartStep(ctx, "run-2", step, 2)
	require.NoError(t, err)

	n, err := s.FailInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.FailInterrupted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := s.GetProcessesByCommandID(ctx, "run-2")
	require.NoError(t, err)
	for _, p := range stored {
		assert.Equal(t, domain.ProcessStatusFailed, p.Status)
		assert.NotNil(t, p.EndTime)
	}
}
