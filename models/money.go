package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in cents. It serializes as a decimal string with two
// places ("12.50") and accepts either a string or a JSON number.
type Money int64

// MaxMoney is the largest amount that fits ten digits with two decimals.
const MaxMoney Money = 99999999_99

var errMoneyFormat = errors.New("price must be a non-negative decimal with at most two places")

// ParseMoney parses "12", "12.5" or "12.50" into cents.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, errMoneyFormat
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if !isDigits(whole) || (hasDot && (!isDigits(frac) || len(frac) > 2)) {
		return 0, errMoneyFormat
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, errMoneyFormat
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, errMoneyFormat
	}
	if w > int64(MaxMoney/100) {
		return 0, fmt.Errorf("price exceeds %s", MaxMoney)
	}
	m := Money(w*100 + f)
	if m > MaxMoney {
		return 0, fmt.Errorf("price exceeds %s", MaxMoney)
	}
	return m, nil
}

// String renders the amount as "units.cents".
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", int64(m)/100, int64(m)%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return errMoneyFormat
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
