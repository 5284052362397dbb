package dto

// BackupEntry is one archive in the catalog listing
type BackupEntry struct {
	Filename    string `json:"filename"`
	Size        string `json:"size"`       // human readable, e.g. "12 MB"
	CreatedAt   string `json:"created_at"` // "2006-01-02 15:04:05", local time
	DownloadURL string `json:"download_url"`
}

// BackupListResponse lists the catalog, newest first
type BackupListResponse struct {
	Success bool          `json:"success"`
	Backups []BackupEntry `json:"backups"`
}

// CreateBackupResponse is returned once the snapshot archive is written
type CreateBackupResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Size     string `json:"size"`
}
