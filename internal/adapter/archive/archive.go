// Package archive writes and reads the .tar.gz snapshot files.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// writers holds the chain file -> gzip -> tar so it can be closed in
// reverse order.
type writers struct {
	tw      *tar.Writer
	closers []io.Closer
}

func (w *writers) Close() error {
	var firstErr error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openWriters(path string) (*writers, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	return &writers{tw: tw, closers: []io.Closer{out, gz, tw}}, nil
}

// Create packs srcDir into a gzip-compressed tar at dest. Entries are rooted
// at srcDir's base name, so the archive has a single top-level directory.
// The file is assembled under dest+".partial" and only renamed into place
// once complete; a failed run never leaves a file at dest. It returns the
// size of the finished archive.
func Create(ctx context.Context, srcDir, dest string) (size int64, err error) {
	partial := dest + ".partial"
	w, err := openWriters(partial)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(partial)
		}
	}()

	root := filepath.Base(srcDir)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(root, rel))
		return addEntry(w.tw, path, name, d)
	})

	closeErr := w.Close()
	if walkErr != nil {
		return 0, fmt.Errorf("failed to write archive: %w", walkErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", closeErr)
	}

	if err := os.Rename(partial, dest); err != nil {
		return 0, fmt.Errorf("failed to move archive into place: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	} else if !info.IsDir() && !info.Mode().IsRegular() {
		return nil
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	// ownership is not restored; keep archives independent of local users
	header.Uid, header.Gid = 0, 0
	header.Uname, header.Gname = "", ""

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	return nil
}

// ErrUnsafePath is returned for entries that would land outside the
// extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes extraction directory")

// Extract unpacks the archive at path into destDir, which must exist.
func Extract(ctx context.Context, path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	destDir = filepath.Clean(destDir)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		if target == destDir {
			continue
		}
		if err := noSymlinkParents(destDir, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := replaceLink(target); err != nil {
				return err
			}
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := extractFile(tr, target, header); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.RemoveAll(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}

		default:
			// hard links, devices and fifos are never written by Create
		}
	}
}

func extractFile(r io.Reader, target string, header *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	// a later entry with the name of an earlier symlink replaces the link
	if info, err := os.Lstat(target); err == nil && !info.Mode().IsRegular() {
		if info.IsDir() {
			return fmt.Errorf("%w: %s would replace a directory", ErrUnsafePath, header.Name)
		}
		if err := os.Remove(target); err != nil {
			return err
		}
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", header.Name, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(target, header.ModTime, header.ModTime)
}

// replaceLink removes a symlink at target so the entry is created in its place.
func replaceLink(target string) error {
	info, err := os.Lstat(target)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(target)
}

func safeJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

// noSymlinkParents refuses to write through a symlink extracted earlier,
// which could otherwise redirect a later entry anywhere on disk.
func noSymlinkParents(destDir, target string) error {
	rel, err := filepath.Rel(destDir, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}

	current := destDir
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s passes through a symlink", ErrUnsafePath, target)
		}
	}
	return nil
}
