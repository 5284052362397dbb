// Package tree copies and mirrors directory trees under exclusion rules.
// It replaces the rsync and cp shell-outs of a classic deployment script.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/martijn/sitecalm/internal/core/domain"
)

// Stats summarizes one tree operation.
type Stats struct {
	Files   int
	Bytes   int64
	Skipped int
	Removed int
}

// Copy recreates src under dst. Paths matched by exclude are skipped
// entirely; an excluded directory is never descended into. Symlinks are
// copied as links and never followed.
func Copy(ctx context.Context, src, dst string, exclude domain.ExclusionSet) (Stats, error) {
	var stats Stats
	if err := copyTree(ctx, src, dst, exclude, false, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// Mirror makes dst an exact copy of src, including deleting entries that
// exist only in dst. Paths matched by keep are neither copied from src nor
// deleted from dst. Files whose size, mode and modification time already
// match are left alone, so running Mirror twice is the same as running it once.
func Mirror(ctx context.Context, src, dst string, keep domain.ExclusionSet) (Stats, error) {
	var stats Stats
	if err := copyTree(ctx, src, dst, keep, true, &stats); err != nil {
		return stats, err
	}
	if err := prune(ctx, src, dst, keep, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func copyTree(ctx context.Context, src, dst string, skip domain.ExclusionSet, onlyChanged bool, stats *Stats) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if rel != "." && skip.Matches(rel) {
			stats.Skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return ensureDir(target, info.Mode().Perm())

		case info.Mode()&fs.ModeSymlink != 0:
			return copySymlink(path, target)

		case info.Mode().IsRegular():
			if onlyChanged && unchanged(info, target) {
				return nil
			}
			if err := copyFile(path, target, info); err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += info.Size()
			return nil

		default:
			// sockets, fifos and devices have no place in a snapshot
			stats.Skipped++
			return nil
		}
	})
}

// prune removes every entry under dst that has no counterpart in src.
func prune(ctx context.Context, src, dst string, keep domain.ExclusionSet, stats *Stats) error {
	return filepath.WalkDir(dst, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dst, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if keep.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if _, err := os.Lstat(filepath.Join(src, rel)); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		stats.Removed++
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
}

func ensureDir(target string, perm fs.FileMode) error {
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(target, perm|0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", target, err)
	}
	return os.Chmod(target, perm|0o700)
}

func copySymlink(path, target string) error {
	link, err := os.Readlink(path)
	if err != nil {
		return err
	}
	if existing, err := os.Readlink(target); err == nil && existing == link {
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Symlink(link, target)
}

func unchanged(src fs.FileInfo, target string) bool {
	dst, err := os.Lstat(target)
	if err != nil || !dst.Mode().IsRegular() {
		return false
	}
	return dst.Size() == src.Size() &&
		dst.Mode().Perm() == src.Mode().Perm() &&
		dst.ModTime().Truncate(time.Second).Equal(src.ModTime().Truncate(time.Second))
}

// copyFile writes to a sibling temp file and renames it into place so a
// reader never sees a half-written file.
func copyFile(path, target string, info fs.FileInfo) error {
	if existing, err := os.Lstat(target); err == nil && existing.IsDir() {
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".sitecalm-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

// CopyFile copies one regular file, creating parent directories. It is used
// for flat config files that live outside any tree.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return copyFile(src, dst, info)
}

// CopyPath copies a file or a whole directory from src to dst.
func CopyPath(ctx context.Context, src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		_, err := Copy(ctx, src, dst, domain.ExclusionSet{})
		return err
	}
	return CopyFile(src, dst)
}
