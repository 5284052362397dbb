package domain

import (
	"strings"
	"time"
)

type ArchiveKind string

const (
	ArchiveKindOperator   ArchiveKind = "operator"
	ArchiveKindPreRestore ArchiveKind = "pre_restore"
)

const (
	OperatorArchivePrefix   = "website_backup_"
	PreRestoreArchivePrefix = "pre_restore_backup_"
	ArchiveExtension        = ".tar.gz"

	archiveTimeLayout = "20060102_150405"
)

func (k ArchiveKind) Prefix() string {
	if k == ArchiveKindPreRestore {
		return PreRestoreArchivePrefix
	}
	return OperatorArchivePrefix
}

// BackupArchive is one snapshot file in the catalog. Archives are never
// modified after they are written.
type BackupArchive struct {
	Filename  string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// ArchiveName builds the catalog filename for a snapshot taken at t.
func ArchiveName(kind ArchiveKind, t time.Time) string {
	return kind.Prefix() + t.Format(archiveTimeLayout) + ArchiveExtension
}

// ArchiveBaseName strips the extension, giving the archive's top-level directory name.
func ArchiveBaseName(filename string) string {
	return strings.TrimSuffix(filename, ArchiveExtension)
}

func (a BackupArchive) Kind() ArchiveKind {
	if strings.HasPrefix(a.Filename, PreRestoreArchivePrefix) {
		return ArchiveKindPreRestore
	}
	return ArchiveKindOperator
}

// ParseArchiveTime extracts the timestamp embedded in a snapshot filename.
func ParseArchiveTime(filename string) (time.Time, bool) {
	base := ArchiveBaseName(filename)
	for _, prefix := range []string{OperatorArchivePrefix, PreRestoreArchivePrefix} {
		if strings.HasPrefix(base, prefix) {
			t, err := time.ParseInLocation(archiveTimeLayout, strings.TrimPrefix(base, prefix), time.Local)
			if err != nil {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidArchiveName reports whether name can address a catalog entry: a bare
// filename with the archive extension and no path components.
func ValidArchiveName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return strings.HasSuffix(name, ArchiveExtension) && len(name) > len(ArchiveExtension)
}
