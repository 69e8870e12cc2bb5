package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ChainRef formats a numeric chain id as a CAIP-2 eip155 reference.
func ChainRef(chainID int64) string {
	return fmt.Sprintf("eip155:%d", chainID)
}

// ParseChainRef accepts "eip155:<id>", a bare decimal id, or a 0x-hex id
// (the form wallet providers report) and returns the numeric chain id.
func ParseChainRef(input string) (int64, error) {
	clean := strings.ToLower(strings.TrimSpace(input))
	if clean == "" {
		return 0, clierr.New(clierr.CodeUsage, "chain identifier is required")
	}
	clean = strings.TrimPrefix(clean, "eip155:")
	if strings.HasPrefix(clean, "0x") {
		n, err := strconv.ParseInt(strings.TrimPrefix(clean, "0x"), 16, 64)
		if err != nil {
			return 0, clierr.Wrap(clierr.CodeUsage, "parse hex chain id", err)
		}
		return n, nil
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUsage, "parse chain id", err)
	}
	return n, nil
}

// HexChainID renders a chain id in the 0x form used by wallet providers.
func HexChainID(chainID int64) string {
	return fmt.Sprintf("0x%x", chainID)
}

// ToBaseUnits converts a decimal token amount ("100", "1.5") to base units.
func ToBaseUnits(decimal string, decimals int) (*big.Int, error) {
	clean := strings.TrimSpace(decimal)
	if !decimalPattern.MatchString(clean) {
		return nil, clierr.New(clierr.CodeUsage, "amount must be in decimal form like 1.23")
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	parts := strings.SplitN(clean, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		combined = "0"
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	return out, nil
}

// FromBaseUnits renders base units as a trimmed decimal string.
func FromBaseUnits(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	s := baseUnits.String()
	if decimals == 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
