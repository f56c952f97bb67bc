package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Amount is a numeric product field. Older snapshots stored quantity and price as
// form text, so decoding accepts JSON numbers and numeric strings. Text that does not
// parse is kept verbatim and the amount is marked invalid.
type Amount struct {
	value float64
	raw   string
	valid bool
}

// Num returns a valid amount.
func Num(v float64) Amount {
	return Amount{value: v, valid: true}
}

// InvalidAmount returns an amount carrying unparseable text.
func InvalidAmount(raw string) Amount {
	return Amount{raw: raw}
}

// ParseAmount parses trimmed text into an amount.
func ParseAmount(text string) (Amount, bool) {
	text = strings.TrimSpace(text)
	v, err := cast.ToFloat64E(text)
	if err != nil || text == "" || math.IsNaN(v) || math.IsInf(v, 0) {
		return InvalidAmount(text), false
	}
	return Num(v), true
}

// Float returns the value and whether the amount is valid.
func (a Amount) Float() (float64, bool) {
	return a.value, a.valid
}

// Value returns the value, or NaN for an invalid amount.
func (a Amount) Value() float64 {
	if !a.valid {
		return math.NaN()
	}
	return a.value
}

func (a Amount) Valid() bool {
	return a.valid
}

func (a Amount) String() string {
	if !a.valid {
		return a.raw
	}
	return strconv.FormatFloat(a.value, 'f', -1, 64)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.valid {
		return []byte(strconv.FormatFloat(a.value, 'f', -1, 64)), nil
	}
	if a.raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(a.raw)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*a, _ = ParseAmount(text)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Num(v)
	return nil
}
