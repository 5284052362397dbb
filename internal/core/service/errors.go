package service

import (
	"errors"

	"github.com/martijn/sitecalm/internal/core/domain"
)

var (
	ErrArchiveNotFound       = errors.New("backup archive not found")
	ErrArchiveCreation       = errors.New("backup archive was not created")
	ErrExtraction            = errors.New("failed to extract backup archive")
	ErrMissingDatabaseBackup = errors.New("database backup not found in archive")
	ErrExternalToolFailure   = errors.New("external tool failed")
	ErrExternalToolTimeout   = errors.New("external tool timed out")
	ErrCacheUnavailable      = errors.New("round-robin cache unavailable")
	ErrRestoreInProgress     = errors.New("another restore is already running")
	ErrPreRestoreSnapshot    = errors.New("pre-restore safety snapshot failed")
	ErrInvalidArchiveName    = errors.New("invalid backup archive name")
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrNoVideos              = errors.New("campaign has no active videos")
	ErrJobNotFound           = errors.New("restore job not found")
	ErrInvalidEvent          = errors.New("invalid analytics event")
)

// ServiceError carries an explicit HTTP status alongside the message.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func NewServiceError(code int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// StepErr converts an unsuccessful step into one of the tool sentinels.
// A missing build marker is reported but is not an error.
func StepErr(result domain.StepResult) error {
	switch result.Status {
	case domain.StepStatusFailed:
		return ErrExternalToolFailure
	case domain.StepStatusTimeout:
		return ErrExternalToolTimeout
	default:
		return nil
	}
}
