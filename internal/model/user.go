package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account able to log in and own notes.
type User struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Username    string    `json:"username" gorm:"type:varchar(64) COLLATE utf8mb4_bin;uniqueIndex;not null"` // case handling is decided by the account policy
	Password    string    `json:"-" gorm:"size:256;not null"` // bcrypt hash, never exposed
	IsAdmin     bool      `json:"is_admin" gorm:"not null;default:false"`
	CreatedDate time.Time `json:"created_date" gorm:"autoCreateTime"`
	UpdatedDate time.Time `json:"updated_date" gorm:"autoUpdateTime"`

	// Relations
	Notes []Note `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
