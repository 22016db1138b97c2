// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from form input
// and converting between cents and their decimal representation.
package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts a decimal string to cents with half-up rounding.
//
// Commas are thousands separators and the dot is the decimal separator, so
// "1,250.50" is 125050 cents. An empty string is zero. Signs are rejected:
// ledger inputs are never negative, only the derived balance can be.
//
// Examples:
//
//	ParseAmount("1000")     -> 100000, nil
//	ParseAmount("12.345")   -> 1235, nil (half-up on the third decimal)
//	ParseAmount("")         -> 0, nil
//	ParseAmount("-1")       -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	// ASCII only: the fraction below is read byte by byte.
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv >= maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// MoneyFromUnits builds Money from a whole-unit count.
func MoneyFromUnits(units int64) Money {
	return Money{Cents: units * 100}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsNegative() bool { return m.Cents < 0 }
func (m Money) IsZero() bool     { return m.Cents == 0 }

// Decimal renders the shortest decimal form: 100000 -> "1000", 1250 -> "12.5".
func (m Money) Decimal() string {
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	s := strconv.FormatInt(c/100, 10)
	if rem := c % 100; rem != 0 {
		frac := strconv.FormatInt(rem+100, 10)[1:]
		s += "." + strings.TrimRight(frac, "0")
	}
	if neg {
		return "-" + s
	}
	return s
}

// Format renders m for display with thousands separators and the given
// prefix, e.g. "BDT 1,234.50". Whole amounts drop the decimals.
func (m Money) Format(prefix string) string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	digits := strconv.FormatInt(c/100, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if rem := c % 100; rem != 0 {
		b.WriteString(".")
		b.WriteString(strconv.FormatInt(rem+100, 10)[1:])
	}
	return sign + prefix + b.String()
}

// MarshalJSON encodes money as a plain JSON number in currency units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidAmount
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrInvalidAmount
	}
	*m = Money{Cents: int64(math.Round(f * 100))}
	return nil
}
