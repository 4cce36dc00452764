package domain

import "github.com/shopspring/decimal"

// USDC is an amount in whole USDC. It marshals as a bare JSON number
// holding the exact decimal text.
type USDC struct {
	decimal.Decimal
}

func NewUSDC(d decimal.Decimal) USDC {
	return USDC{Decimal: d}
}

// USDCPtr wraps an optional amount; nil stays nil.
func USDCPtr(d *decimal.Decimal) *USDC {
	if d == nil {
		return nil
	}
	u := NewUSDC(*d)
	return &u
}

func (u USDC) MarshalJSON() ([]byte, error) {
	return []byte(u.Decimal.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted decimal strings.
func (u *USDC) UnmarshalJSON(data []byte) error {
	return u.Decimal.UnmarshalJSON(data)
}
