package models

import "gorm.io/gorm"

// User represents a back-office account that can sign in to the API.
type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Name         string
}
