package model

import "time"

// Seller links a platform user to a connected payout account at the processor.
type Seller struct {
	ID                  uint64    `gorm:"primaryKey" json:"id"`
	UserID              uint64    `gorm:"not null;uniqueIndex" json:"userId"`
	PayoutAccountID     string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	OnboardingCompleted bool      `gorm:"not null;index" json:"onboardingCompleted"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Seller) TableName() string { return "sellers" }

func (s *Seller) HasPayoutAccount() bool { return s != nil && s.PayoutAccountID != "" }
