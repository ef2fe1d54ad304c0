// Package types provides common types used across Custody.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// amountBits is the width of every balance on the wire.
const amountBits = 128

// Arithmetic and parsing errors. They are re-exported by the root package.
var (
	ErrOverflow     = errors.New("custody: arithmetic overflow")
	ErrUnderflow    = errors.New("custody: arithmetic underflow")
	ErrAmountFormat = errors.New("custody: malformed amount")
	ErrAmountRange  = errors.New("custody: amount exceeds 128 bits")
)

// Amount is an unsigned 128-bit token quantity in the smallest unit.
// All arithmetic is checked: operations that would leave [0, 2^128-1]
// return an error instead of wrapping or saturating.
//
// The zero value is a valid zero amount.
type Amount struct {
	v uint256.Int
}

// ZeroAmount is the zero Amount.
var ZeroAmount Amount

var maxAmount = func() Amount {
	var a Amount
	a.v.Lsh(uint256.NewInt(1), amountBits)
	a.v.SubUint64(&a.v, 1)
	return a
}()

// Constructors

// NewAmount creates an Amount from a uint64.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// MaxAmount returns 2^128-1, the largest representable Amount.
func MaxAmount() Amount { return maxAmount }

// ParseAmount parses a base-10 string such as "1000000000000000000000000".
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return ZeroAmount, fmt.Errorf("%w: empty string", ErrAmountFormat)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return ZeroAmount, fmt.Errorf("%w: %q: %v", ErrAmountFormat, s, err)
	}
	if v.BitLen() > amountBits {
		return ZeroAmount, fmt.Errorf("%w: %q", ErrAmountRange, s)
	}
	return Amount{v: *v}, nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Pow10 returns 10^exp. It panics if exp > 38, the largest power of ten
// below 2^128.
func Pow10(exp uint64) Amount {
	if exp > 38 {
		panic(fmt.Sprintf("types: 10^%d exceeds 128 bits", exp))
	}
	var a Amount
	a.v.Exp(uint256.NewInt(10), uint256.NewInt(exp))
	return a
}

// Arithmetic operations

// Add returns a+b, or ErrOverflow if the sum exceeds 2^128-1.
func (a Amount) Add(b Amount) (Amount, error) {
	var r Amount
	// Both operands fit in 128 bits, so the 256-bit sum cannot wrap.
	r.v.Add(&a.v, &b.v)
	if r.v.BitLen() > amountBits {
		return ZeroAmount, ErrOverflow
	}
	return r, nil
}

// Sub returns a-b, or ErrUnderflow if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.v.Lt(&b.v) {
		return ZeroAmount, ErrUnderflow
	}
	var r Amount
	r.v.Sub(&a.v, &b.v)
	return r, nil
}

// Mul returns a*b, or ErrOverflow if the product exceeds 2^128-1.
func (a Amount) Mul(b Amount) (Amount, error) {
	var r Amount
	if _, overflow := r.v.MulOverflow(&a.v, &b.v); overflow || r.v.BitLen() > amountBits {
		return ZeroAmount, ErrOverflow
	}
	return r, nil
}

// SaturatingSub returns a-b floored at zero.
func (a Amount) SaturatingSub(b Amount) Amount {
	r, err := a.Sub(b)
	if err != nil {
		return ZeroAmount
	}
	return r
}

// Comparison methods

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Lt reports whether a < b.
func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

// Gt reports whether a > b.
func (a Amount) Gt(b Amount) bool { return a.v.Gt(&b.v) }

// Eq reports whether a == b.
func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Uint64 returns the low 64 bits and whether the value fit.
func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

// Formatting and encoding

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a decimal string, the usual form for
// 128-bit quantities that do not survive a float64 round trip.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrAmountFormat, string(data))
		}
		s = n.String()
	}
	return a.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer. Amounts are stored as decimal text.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = ZeroAmount
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("%w: negative value %d", ErrAmountFormat, v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("types: cannot scan %T into Amount", src)
	}
}

// Sum adds all values, failing on the first overflow.
func Sum(values ...Amount) (Amount, error) {
	total := ZeroAmount
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return ZeroAmount, err
		}
	}
	return total, nil
}
