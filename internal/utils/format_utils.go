package utils

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// FormatUnitsTrim converts a wei amount to a human string:
// - divides by 10^decimals
// - trims to maxFrac decimal places
// - removes trailing zeros
//
// Examples:
//
//	amount=2500000000000000000, decimals=18 -> "2.5"
//	amount=1000000000000000000, decimals=18 -> "1"
//	amount=1, decimals=18, maxFrac=18 -> "0.000000000000000001"
func FormatUnitsTrim(amount *big.Int, decimals uint8, maxFrac int) string {
	if amount == nil || amount.Sign() == 0 {
		return "0"
	}

	sign := ""
	abs := amount
	if amount.Sign() < 0 {
		sign = "-"
		abs = new(big.Int).Neg(amount)
	}

	base := pow10(decimals)
	intPart := new(big.Int).Div(abs, base)
	fracPart := new(big.Int).Mod(abs, base)

	if fracPart.Sign() == 0 || maxFrac <= 0 {
		return sign + intPart.String()
	}

	// Left-pad fractional part to `decimals`
	fracStr := fracPart.String()
	if len(fracStr) < int(decimals) {
		fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	}

	if len(fracStr) > maxFrac {
		fracStr = fracStr[:maxFrac]
	}

	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		if intPart.Sign() == 0 {
			return "0"
		}
		return sign + intPart.String()
	}

	return sign + intPart.String() + "." + fracStr
}

// ParseUnits converts a display decimal ("2.5") into base units.
// More fractional digits than decimals is an error, never a rounding.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty amount")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return nil, errors.New("empty amount")
	}

	intStr, fracStr, hasDot := strings.Cut(s, ".")
	if hasDot && fracStr == "" && intStr == "" {
		return nil, errors.Newf("invalid amount %q", s)
	}
	if intStr == "" {
		intStr = "0"
	}
	if !digitsOnly(intStr) || !digitsOnly(fracStr) {
		return nil, errors.Newf("invalid amount %q", s)
	}
	if len(fracStr) > int(decimals) {
		return nil, errors.Newf("amount %q has more than %d decimals", s, decimals)
	}

	fracStr += strings.Repeat("0", int(decimals)-len(fracStr))
	out, ok := new(big.Int).SetString(intStr+fracStr, 10)
	if !ok {
		return nil, errors.Newf("invalid amount %q", s)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// FormatRemaining renders an auction countdown, e.g. "1h 2m 3s" or "Ended".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "Ended"
	}
	d = d.Truncate(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, sec)
	}
	return fmt.Sprintf("%dh %dm %ds", h, m, sec)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
