package model

// Tag holds a label shared across files. UsageCount is only ever touched in
// the same transaction as a FileTag insert or delete, so it always equals the
// number of relation rows without any background recount.
type Tag struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string `gorm:"uniqueIndex;not null" json:"name"`
	UsageCount int64  `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt  int64  `gorm:"not null" json:"created_at"`
}

// FileTag links a file to a tag
type FileTag struct {
	FileID    string `gorm:"primaryKey" json:"file_id"`
	TagID     uint   `gorm:"primaryKey" json:"tag_id"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
}
