package math

import (
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the decimal count of ether and of most ERC-20 base assets.
const EtherDecimals = 18

// ParseUnits converts a decimal string ("10", "0.5") into its smallest-unit
// integer representation scaled by decimals.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(value, "-") {
		return nil, fmt.Errorf("negative amount %q", value)
	}

	whole, frac, hasFrac := strings.Cut(value, ".")
	if hasFrac && frac == "" {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	if whole == "" {
		whole = "0"
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return out, nil
}

// ParseEther is ParseUnits with 18 decimals.
func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, EtherDecimals)
}

// MustParseEther panics on malformed input; for literals only.
func MustParseEther(value string) *big.Int {
	out, err := ParseEther(value)
	if err != nil {
		panic(err)
	}
	return out
}

// FormatUnits renders amount as a decimal string without trailing zeros.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return sign + whole.String() + "." + fracStr
}
