package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount. The platform is single-currency;
// auction prices are stored as numeric(12,2) and wallet balances as
// numeric(14,2), and both flow through this value object.
type Money struct {
	amount decimal.Decimal
}

// Scale is the number of decimal places every amount is kept at.
const Scale = 2

// Integer digits available at each precision tier.
const (
	priceIntDigits   = 10 // numeric(12,2)
	balanceIntDigits = 12 // numeric(14,2)
)

// NewMoney creates a Money value from a decimal amount. Amounts with more
// than two decimal places are rejected rather than silently rounded.
func NewMoney(amount decimal.Decimal) (Money, error) {
	if amount.Exponent() < -Scale {
		return Money{}, fmt.Errorf("amount %s exceeds scale of %d decimal places", amount.String(), Scale)
	}
	return Money{amount: amount}, nil
}

// NewMoneyFromString parses a decimal string such as "50.00".
func NewMoneyFromString(s string) (Money, error) {
	dec, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}
	return NewMoney(dec)
}

// NewMoneyFromFloat converts a float64 amount, rejecting sub-cent noise.
func NewMoneyFromFloat(f float64) (Money, error) {
	dec := decimal.NewFromFloat(f)
	if !dec.Round(Scale).Equal(dec) {
		return Money{}, fmt.Errorf("amount %v exceeds scale of %d decimal places", f, Scale)
	}
	return Money{amount: dec}, nil
}

// MustMoney parses a decimal string and panics on error (fixtures/tests).
func MustMoney(s string) Money {
	m, err := NewMoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the underlying decimal.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// String renders the amount with exactly two decimal places, e.g. "50.00".
func (m Money) String() string {
	return m.amount.StringFixed(Scale)
}

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Equal reports whether two amounts are numerically equal.
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// Compare returns -1, 0, or 1.
func (m Money) Compare(other Money) int {
	return m.amount.Cmp(other.amount)
}

// GreaterThan reports m > other.
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// FitsPrice reports whether the amount is representable as numeric(12,2),
// the precision of auction prices.
func (m Money) FitsPrice() bool {
	return fitsIntDigits(m.amount, priceIntDigits)
}

// FitsBalance reports whether the amount is representable as numeric(14,2),
// the precision of wallet balances.
func (m Money) FitsBalance() bool {
	return fitsIntDigits(m.amount, balanceIntDigits)
}

func fitsIntDigits(d decimal.Decimal, digits int32) bool {
	limit := decimal.New(1, digits)
	return d.Abs().LessThan(limit)
}

// MarshalJSON renders the amount as a quoted fixed-point string, the wire
// representation every frame uses to preserve precision.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both string and bare-number encodings.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare JSON number.
		s = string(data)
	}
	money, err := NewMoneyFromString(s)
	if err != nil {
		return err
	}
	*m = money
	return nil
}

// Scan implements sql.Scanner for numeric columns.
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return m.scanFromString(string(v))
	case string:
		return m.scanFromString(v)
	case int64:
		*m = Money{amount: decimal.NewFromInt(v)}
		return nil
	case float64:
		*m = Money{amount: decimal.NewFromFloat(v)}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Value implements driver.Valuer; numeric columns accept the string form.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) scanFromString(s string) error {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money format: %w", err)
	}
	*m = Money{amount: amount}
	return nil
}
