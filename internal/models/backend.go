package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Backend is a remote compute environment trusted to upload release files.
// AuthToken is the single active bearer token; rotation replaces it in one
// UPDATE so there is never a window with two valid tokens or none.
type Backend struct {
	ID        uuid.UUID      `gorm:"type:text;primary_key" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Slug      string         `gorm:"uniqueIndex;not null" json:"slug"`
	AuthToken string         `gorm:"uniqueIndex;not null" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID and an initial token
func (b *Backend) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.AuthToken == "" {
		token, err := NewBackendToken()
		if err != nil {
			return err
		}
		b.AuthToken = token
	}
	return nil
}

// NewBackendToken returns a fresh random bearer token.
func NewBackendToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating backend token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RotateToken replaces the backend's auth token. The swap is a single UPDATE
// inside a transaction: requests with the old token fail from the moment the
// transaction commits, requests with the new one succeed.
func (b *Backend) RotateToken(db *gorm.DB) error {
	token, err := NewBackendToken()
	if err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(b).Update("auth_token", token).Error
	})
	if err != nil {
		return fmt.Errorf("rotating token for backend %s: %w", b.Slug, err)
	}

	b.AuthToken = token
	return nil
}
