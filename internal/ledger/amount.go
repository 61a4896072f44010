package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amounts are int64 minor units with two implied decimals: "12.34" == 1234.
// All arithmetic stays in integers; floats never touch a balance.

var errBadAmount = errors.New("malformed amount")

// ParseAmount converts a decimal string with at most two fraction digits
// into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadAmount
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, errBadAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, errBadAmount
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, errBadAmount
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return v, nil
}

// FormatAmount renders minor units as a two-decimal string.
func FormatAmount(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// feeFor computes the extension fee: percent of the remaining amount,
// rounded half-up (7 at 20% -> 1, 25 at 10% -> 3), never below one minor
// unit and never above the remainder it rescues. Rounding mode is pinned
// by tests.
func feeFor(remaining int64, percent int64) int64 {
	if remaining <= 0 {
		return 1
	}
	fee := (remaining*percent + 50) / 100
	if fee < 1 {
		fee = 1
	}
	if fee > remaining {
		fee = remaining
	}
	return fee
}
