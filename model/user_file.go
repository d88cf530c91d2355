package model

// UserFile links a user to stored content. The same hash may be
// referenced by any number of users, each under their own file name.
type UserFile struct {
	ID       uint   `gorm:"primaryKey;autoIncrement;index" json:"id"`
	UserID   string `gorm:"index:idx_user_hash,unique;not null" json:"-"`
	FileHash string `gorm:"index:idx_user_hash,unique;not null" json:"hash"`

	FileName string `gorm:"not null" json:"name"`
	Size     int64  `json:"size"`

	// Unix second timestamps
	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}
