// Package model defines database models
package model

import "time"

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"unique; not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time

	Files []UserFile `gorm:"foreignKey:UserID"`
}
