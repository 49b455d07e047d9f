package model

import "time"

type Book struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	UserID      uint64    `gorm:"not null;index" json:"userId"`
	Owner       *User     `gorm:"foreignKey:UserID" json:"owner,omitempty"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Author      string    `gorm:"size:255" json:"author"`
	Category    string    `gorm:"size:64;index" json:"category"`
	Language    string    `gorm:"size:32" json:"language"`
	PriceCents  int64     `gorm:"not null;default:0" json:"priceCents"`
	IsFree      bool      `gorm:"not null;index" json:"isFree"`
	IsPublished bool      `gorm:"not null;index" json:"isPublished"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Book) TableName() string { return "books" }

// BookUpdate names every field an owner may change. Nil means untouched.
type BookUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Author      *string `json:"author"`
	Category    *string `json:"category"`
	Language    *string `json:"language"`
	PriceCents  *int64  `json:"priceCents"`
	IsPublished *bool   `json:"isPublished"`
}

// Apply copies the set fields onto b and recomputes IsFree from the price.
func (u BookUpdate) Apply(b *Book) {
	if u.Title != nil {
		b.Title = *u.Title
	}
	if u.Description != nil {
		b.Description = *u.Description
	}
	if u.Author != nil {
		b.Author = *u.Author
	}
	if u.Category != nil {
		b.Category = *u.Category
	}
	if u.Language != nil {
		b.Language = *u.Language
	}
	if u.PriceCents != nil {
		b.PriceCents = *u.PriceCents
	}
	if u.IsPublished != nil {
		b.IsPublished = *u.IsPublished
	}
	b.IsFree = b.PriceCents == 0
}
