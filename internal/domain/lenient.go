package domain

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount decodes a money field from a JSON number or numeric string.
// Anything else, including null, decodes to zero.
type Amount struct {
	decimal.Decimal
}

func NewAmount(v int64) Amount {
	return Amount{Decimal: decimal.NewFromInt(v)}
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	a.Decimal = decimal.Zero
	raw := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(b)), `"`))
	if raw == "" {
		return nil
	}
	if parsed, err := decimal.NewFromString(raw); err == nil {
		a.Decimal = parsed
	}
	return nil
}

// RefID decodes a record reference from a JSON number or numeric string.
// Values that are not positive integers decode to zero, which never matches a record.
type RefID int64

func (r *RefID) UnmarshalJSON(b []byte) error {
	*r = 0
	raw := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(b)), `"`))
	if raw == "" || raw == "null" {
		return nil
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		*r = RefID(id)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 && f == float64(int64(f)) {
		*r = RefID(int64(f))
	}
	return nil
}
