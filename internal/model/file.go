// Package model defines database models
package model

// File is the root record for one distinct stored content object. Rows are
// never physically removed here; deletion flips the Deleted flag and the row
// stays behind for audit queries.
type File struct {
	ID           string `gorm:"primaryKey" json:"id"`
	OriginalName string `gorm:"not null" json:"name"`
	StoredName   string `json:"stored_name"`
	Extension    string `gorm:"not null" json:"extension"`
	MediaType    string `gorm:"not null" json:"media_type"`
	Size         int64  `gorm:"not null" json:"size"`

	// Hex digest of the file content. Unique among live rows only, so a
	// soft-deleted file never blocks re-registration of the same content.
	Fingerprint string `gorm:"not null;index:idx_files_fingerprint,unique,where:deleted = false" json:"fingerprint"`

	// Opaque reference into the blob store. Never interpreted here
	StorageKey string `json:"-"`

	// Weak reference, lifecycle owned by whoever manages categories
	CategoryID *string `json:"category_id,omitempty"`

	Private   bool   `json:"private"`
	Deleted   bool   `gorm:"not null;default:false" json:"-"`
	DeletedAt *int64 `json:"-"`

	Views     int64 `gorm:"not null;default:0" json:"views"`
	Downloads int64 `gorm:"not null;default:0" json:"downloads"`

	// Unix millisecond timestamps
	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

type Category struct {
	ID   string `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}
