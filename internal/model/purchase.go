package model

import "time"

// Purchase is append-only: one row per (buyer, book), written once the
// processor reports the payment captured.
type Purchase struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	BuyerID       uint64    `gorm:"not null;uniqueIndex:ux_purchase_buyer_book,priority:1" json:"buyerId"`
	BookID        uint64    `gorm:"not null;uniqueIndex:ux_purchase_buyer_book,priority:2;index" json:"bookId"`
	Book          *Book     `gorm:"foreignKey:BookID;constraint:-" json:"book,omitempty"`
	PriceCents    int64     `gorm:"not null" json:"priceCents"`
	PaymentStatus bool      `gorm:"not null" json:"paymentStatus"`
	PaymentID     string    `gorm:"size:128;not null;index" json:"paymentId"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Purchase) TableName() string { return "purchases" }

// SettlementKey is the idempotency key for every payout attempt of this purchase.
func (p Purchase) SettlementKey() string {
	return "settle-purchase-" + uitoa(p.ID)
}
