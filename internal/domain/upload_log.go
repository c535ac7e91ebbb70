package domain

import (
	"time"

	"github.com/google/uuid"
)

// UploadStatus is the terminal state of one ingestion attempt.
type UploadStatus string

const (
	UploadStatusSuccess UploadStatus = "Success"
	UploadStatusPartial UploadStatus = "Partial"
	UploadStatusFailed  UploadStatus = "Failed"
)

// UploadLogEntry records one ingestion attempt, write-once. RowsProcessed and
// RowsFailed reflect rows actually committed / left uncommitted, including
// mid-run batch failures.
type UploadLogEntry struct {
	ID            uuid.UUID    `json:"id"`
	FileName      string       `json:"file_name"`
	RowsProcessed int          `json:"rows_processed"`
	RowsFailed    int          `json:"rows_failed"`
	Status        UploadStatus `json:"status"`
	ErrorLog      string       `json:"error_log,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
