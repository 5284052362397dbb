package domain

import "time"

const (
	ManifestVersion  = 1
	ManifestFilename = "manifest.json"
	InfoFilename     = "backup_info.txt"
	DatabaseFilename = "database_backup.sqlite"
	BackendTreeName  = "backend"
	FrontendTreeName = "frontend"
)

// Manifest is written at the archive root and states where each part of the
// snapshot lives, relative to that root. Empty fields mean the part is absent.
type Manifest struct {
	Version     int         `json:"version"`
	Kind        ArchiveKind `json:"kind"`
	CreatedAt   time.Time   `json:"created_at"`
	Backend     string      `json:"backend,omitempty"`
	Frontend    string      `json:"frontend,omitempty"`
	Database    string      `json:"database,omitempty"`
	ConfigFiles []string    `json:"config_files,omitempty"`
}

func NewManifest(kind ArchiveKind, createdAt time.Time) *Manifest {
	return &Manifest{
		Version:   ManifestVersion,
		Kind:      kind,
		CreatedAt: createdAt,
	}
}

// LegacyManifest describes archives written before manifests existed, which
// always used the fixed layout.
func LegacyManifest() *Manifest {
	return &Manifest{
		Version:  0,
		Backend:  BackendTreeName,
		Frontend: FrontendTreeName,
		Database: DatabaseFilename,
	}
}
