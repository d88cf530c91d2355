package model

// File is one row per distinct content hash. Many users may link to
// the same row, which is how identical uploads are stored only once.
type File struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"-"`

	// Hex digest of the full file content, the deduplication key
	Hash string `gorm:"uniqueIndex;not null" json:"hash"`

	// Name the first uploader gave the file. Per-user names live on
	// the UserFile link instead
	Name string `json:"name"`

	Size int64 `json:"size"`

	// Either a path inside the staging directory right after upload or
	// the object storage key once the migration worker has moved it
	Location string `json:"-"`

	// Set by the migration worker after the content reached object storage
	Durable bool `json:"durable"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
}
