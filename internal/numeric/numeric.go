// Package numeric implements the fixed-point decimal arithmetic shared by
// the BRC-20 state machine. All token amounts are integers scaled to 18
// fractional digits; parsing and formatting must be bit-exact because the
// formatted string is itself part of the hashed event payload.
package numeric

import (
	"math/big"
	"strings"
)

const scale = 18

var (
	ten18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(scale), nil)

	// MaxFixedPoint is (2^64-1)*10^18, the upper bound on any scaled amount.
	MaxFixedPoint = new(big.Int).Mul(
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1)),
		ten18,
	)
)

// IsPositiveNumber reports whether s is a non-empty string of ASCII digits.
func IsPositiveNumber(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsPositiveNumberWithDot reports whether s is a non-empty digit string with
// at most one interior '.', never leading or trailing.
func IsPositiveNumberWithDot(s string) bool {
	if len(s) == 0 || s[0] == '.' || s[len(s)-1] == '.' {
		return false
	}
	dotFound := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < '0' || ch > '9' {
			if ch != '.' {
				return false
			}
			if dotFound {
				return false
			}
			dotFound = true
		}
	}
	return true
}

// ToFixedPoint scales a decimal string s (validated by the caller with
// IsPositiveNumberWithDot) to an 18-fractional-digit integer, honoring
// decimals significant fractional digits. A string without '.' is taken
// as a whole number. Returns nil if a '.' is followed by an empty
// fractional part or by one wider than decimals allows.
func ToFixedPoint(s string, decimals int) *big.Int {
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		normalPart := s[:idx]
		fracPart := s[idx+1:]
		if len(fracPart) == 0 || len(fracPart) > decimals {
			return nil
		}
		if len(fracPart) > scale {
			fracPart = fracPart[:scale]
		}
		fracPart += strings.Repeat("0", scale-len(fracPart))
		if normalPart == "" {
			normalPart = "0"
		}
		n, ok := new(big.Int).SetString(normalPart+fracPart, 10)
		if !ok {
			return nil
		}
		return n
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return n.Mul(n, ten18)
}

// InRange reports whether x satisfies 0 < x <= MaxFixedPoint. When
// allowZero is true, x == 0 is also accepted (the self-mint deploy
// rewrite path).
func InRange(x *big.Int, allowZero bool) bool {
	if x == nil {
		return false
	}
	sign := x.Sign()
	if sign < 0 {
		return false
	}
	if sign == 0 {
		return allowZero
	}
	return x.Cmp(MaxFixedPoint) <= 0
}

// FixNumStrDecimals renders a scaled fixed-point integer n back to its
// canonical decimal string: the stored value always carries 18
// fractional digits; this truncates the fraction to min(decimals,18)
// digits, strips trailing zeros from what remains, and drops the
// decimal point entirely when no fractional digits survive.
func FixNumStrDecimals(n *big.Int, decimals int) string {
	s := n.String()
	var intPart, fracPart string
	if len(s) <= scale {
		intPart = "0"
		fracPart = strings.Repeat("0", scale-len(s)) + s
	} else {
		intPart = s[:len(s)-scale]
		fracPart = s[len(s)-scale:]
	}

	if decimals < scale {
		fracPart = fracPart[:decimals]
	}
	fracPart = strings.TrimRight(fracPart, "0")

	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
