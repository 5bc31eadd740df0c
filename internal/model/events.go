package model

// Event outcome and kind values used across the registration flows
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"

	AccessDownload = "download"
	AccessView     = "view"
)

// UploadEvent is the audit trail of a single registration attempt. One row
// per attempt, written once, never updated.
type UploadEvent struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	FileID    *string `gorm:"index" json:"file_id,omitempty"`
	Outcome   string  `gorm:"not null;index" json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	IP        string  `json:"ip"`
	UserAgent string  `json:"user_agent"`
	SessionID string  `json:"session_id"`
	CreatedAt int64   `gorm:"not null" json:"created_at"`
}

// AccessEvent records one download or view of a live file. BytesSent falls
// back to the file's recorded size when the caller doesn't supply one.
type AccessEvent struct {
	ID        string `gorm:"primaryKey" json:"id"`
	FileID    string `gorm:"not null;index" json:"file_id"`
	File      File   `gorm:"foreignKey:FileID" json:"-"`
	Kind      string `gorm:"not null;index" json:"kind"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	SessionID string `json:"session_id"`
	BytesSent int64  `json:"bytes_sent"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
}
