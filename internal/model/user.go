package model

import "time"

// User is owned by the account service; this service only reads it.
type User struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	FullName  string    `gorm:"size:128" json:"fullName"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"-"`
	Avatar    string    `gorm:"size:512" json:"avatar"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

func (User) TableName() string { return "users" }
