package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martijn/sitecalm/internal/core/domain"
	"github.com/martijn/sitecalm/pkg/config"
)

func seedCatalog(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("archive "+name), 0o644))
	}
}

func TestCatalogListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	seedCatalog(t, dir,
		"website_backup_20250101_120000.tar.gz",
		"pre_restore_backup_20250301_080000.tar.gz",
		"website_backup_20250201_120000.tar.gz",
		"notes.txt",
		"website_backup_20250401_000000.tar.gz.partial",
	)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.tar.gz"), 0o755))

	// foreign names sort by modification time
	foreign := filepath.Join(dir, "manual-copy.tar.gz")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o644))
	old := time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(foreign, old, old))

	archives, err := NewCatalogService(dir, zerolog.Nop()).List(context.Background())
	require.NoError(t, err)

	var names []string
	for _, a := range archives {
		names = append(names, a.Filename)
	}
	assert.Equal(t, []string{
		"pre_restore_backup_20250301_080000.tar.gz",
		"website_backup_20250201_120000.tar.gz",
		"website_backup_20250101_120000.tar.gz",
		"manual-copy.tar.gz",
	}, names)

	assert.Equal(t, domain.ArchiveKindPreRestore, archives[0].Kind())
	assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local), archives[0].CreatedAt)
	assert.Equal(t, int64(len("archive pre_restore_backup_20250301_080000.tar.gz")), archives[0].Size)
}

func TestCatalogListMissingDirectory(t *testing.T) {
	archives, err := NewCatalogService(filepath.Join(t.TempDir(), "nope"), zerolog.Nop()).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestCatalogOpen(t *testing.T) {
	dir := t.TempDir()
	seedCatalog(t, dir, "website_backup_20250101_120000.tar.gz")
	catalog := NewCatalogService(dir, zerolog.Nop())

	f, a, err := catalog.Open(context.Background(), "website_backup_20250101_120000.tar.gz")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "archive website_backup_20250101_120000.tar.gz", string(data))
	assert.Equal(t, int64(len(data)), a.Size)

	tests := []struct {
		name     string
		filename string
	}{
		{"missing", "website_backup_20990101_000000.tar.gz"},
		{"traversal", "../website_backup_20250101_120000.tar.gz"},
		{"separator", "sub/website_backup_20250101_120000.tar.gz"},
		{"wrong extension", "website_backup_20250101_120000.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := catalog.Open(context.Background(), tt.filename)
			assert.ErrorIs(t, err, ErrArchiveNotFound)
		})
	}
}

func TestCatalogDelete(t *testing.T) {
	dir := t.TempDir()
	seedCatalog(t, dir, "website_backup_20250101_120000.tar.gz")
	rep := &fakeReplicator{}
	catalog := NewCatalogService(dir, zerolog.Nop()).WithReplicator(rep)

	require.NoError(t, catalog.Delete(context.Background(), "website_backup_20250101_120000.tar.gz"))
	assert.NoFileExists(t, filepath.Join(dir, "website_backup_20250101_120000.tar.gz"))
	assert.Equal(t, []string{"website_backup_20250101_120000.tar.gz"}, rep.deleted)

	err := catalog.Delete(context.Background(), "website_backup_20250101_120000.tar.gz")
	assert.ErrorIs(t, err, ErrArchiveNotFound)
	assert.Len(t, rep.deleted, 1)
}

func TestCleanupPrune(t *testing.T) {
	dir := t.TempDir()
	seedCatalog(t, dir,
		"website_backup_20250101_000000.tar.gz",
		"website_backup_20250201_000000.tar.gz",
		"website_backup_20250301_000000.tar.gz",
		"website_backup_20250401_000000.tar.gz",
		"pre_restore_backup_20250110_000000.tar.gz",
		"pre_restore_backup_20250310_000000.tar.gz",
		"pre_restore_backup_20250410_000000.tar.gz",
	)

	tests := []struct {
		name      string
		retention config.RetentionConfig
		deleted   []string
	}{
		{
			name:      "all rules off",
			retention: config.RetentionConfig{},
			deleted:   []string{},
		},
		{
			name:      "keep last per kind",
			retention: config.RetentionConfig{KeepLast: 2, KeepPreRestore: 1},
			deleted: []string{
				"pre_restore_backup_20250310_000000.tar.gz",
				"website_backup_20250201_000000.tar.gz",
				"pre_restore_backup_20250110_000000.tar.gz",
				"website_backup_20250101_000000.tar.gz",
			},
		},
		{
			name:      "max age",
			retention: config.RetentionConfig{MaxAge: 30 * 24 * time.Hour},
			deleted: []string{
				"pre_restore_backup_20250310_000000.tar.gz",
				"website_backup_20250301_000000.tar.gz",
				"website_backup_20250201_000000.tar.gz",
				"pre_restore_backup_20250110_000000.tar.gz",
				"website_backup_20250101_000000.tar.gz",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := t.TempDir()
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				seedCatalog(t, work, e.Name())
			}

			cleanup := NewCleanupService(NewCatalogService(work, zerolog.Nop()), tt.retention, nil, zerolog.Nop())
			cleanup.now = func() time.Time { return time.Date(2025, 4, 20, 0, 0, 0, 0, time.Local) }

			deleted, err := cleanup.Prune(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.deleted, deleted)
			for _, name := range deleted {
				assert.NoFileExists(t, filepath.Join(work, name))
			}
			assert.Len(t, dirEntries(t, work), 7-len(tt.deleted))
		})
	}
}
