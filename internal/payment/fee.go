package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativeAmount is returned for prices below zero.
var ErrNegativeAmount = errors.New("amount must not be negative")

// Split is a price divided between seller and platform, in minor units.
// Settlement + Fee always equals the price it was computed from.
type Split struct {
	Settlement int64
	Fee        int64
}

// SplitAmount routes round(price*(1-rate)) to the seller and keeps the rest.
func SplitAmount(price int64, rate decimal.Decimal) (Split, error) {
	if price < 0 {
		return Split{}, ErrNegativeAmount
	}
	share := decimal.NewFromInt(1).Sub(rate)
	settlement := decimal.NewFromInt(price).Mul(share).Round(0).IntPart()
	return Split{Settlement: settlement, Fee: price - settlement}, nil
}

// MinorToMajor renders an amount in minor units as a currency decimal (1999 -> 19.99).
func MinorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
