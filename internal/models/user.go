package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is a panel account. Only panel access control lives here; OS-level
// users referenced by cron jobs are plain strings on the job record.
type User struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username         string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email            string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password         string    `gorm:"size:255;not null" json:"-"`
	Role             string    `gorm:"size:20;default:'user'" json:"role"`
	TwoFactorEnabled bool      `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string    `gorm:"size:100" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
