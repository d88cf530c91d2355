package db

import (
	"context"
	"time"

	"github.com/FrezCirno/CloudStorageSystem/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetaStore is the gorm-backed file metadata store consumed by the
// upload pipeline. It doubles as the deduplication index: a hash is
// considered stored as soon as its File row exists.
type MetaStore struct {
	DB *gorm.DB
}

func NewMetaStore(db *gorm.DB) *MetaStore {
	return &MetaStore{DB: db}
}

func (m *MetaStore) FileHashExists(ctx context.Context, hash string) (bool, error) {
	var found bool

	err := m.DB.
		WithContext(ctx).
		Model(model.File{}).
		Select("count(*) > 0").
		Where("hash = ?", hash).
		Find(&found).
		Error
	if err != nil {
		return false, err
	}

	return found, nil
}

func (m *MetaStore) CreateFileMeta(ctx context.Context, hash, name string, size int64, location string) error {
	return m.DB.
		WithContext(ctx).
		Create(&model.File{
			Hash:      hash,
			Name:      name,
			Size:      size,
			Location:  location,
			CreatedAt: time.Now().Unix(),
		}).
		Error
}

// CreateUserFileLink is idempotent per (user, hash): re-linking
// content the user already has is a no-op instead of a unique
// constraint violation.
func (m *MetaStore) CreateUserFileLink(ctx context.Context, userID, hash, name string, size int64) error {
	now := time.Now().Unix()

	return m.DB.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "file_hash"}},
			DoNothing: true,
		}).
		Create(&model.UserFile{
			UserID:    userID,
			FileHash:  hash,
			FileName:  name,
			Size:      size,
			CreatedAt: now,
			UpdatedAt: now,
		}).
		Error
}
