package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Note is a titled secret owned by exactly one user.
type Note struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Title       string    `json:"title" gorm:"size:128;not null"`
	Description string    `json:"description" gorm:"size:512;not null"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:char(36);not null;index"`
	CreatedDate time.Time `json:"created_date" gorm:"autoCreateTime"`
	UpdatedDate time.Time `json:"updated_date" gorm:"autoUpdateTime"`

	// Relations
	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate sets UUID before creating the record.
func (n *Note) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
