package misc

import (
	"fmt"
	"strconv"
	"strings"
)

const baseDecimals = 9

// FormattedAmount renders base units as whole coins, trimming trailing zeros.
func FormattedAmount(baseUnits uint64) string {
	whole := baseUnits / 1e9
	frac := baseUnits % 1e9
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return fmt.Sprintf("%d.%s", whole, fracStr)
}

// ParseAmount parses a decimal coin amount ("1.5") into base units.
func ParseAmount(amount string) (uint64, error) {
	amount = strings.TrimSpace(amount)
	wholeStr, fracStr, hasFrac := strings.Cut(amount, ".")
	if wholeStr == "" && (!hasFrac || fracStr == "") {
		return 0, fmt.Errorf("invalid amount:%q", amount)
	}
	if len(fracStr) > baseDecimals {
		return 0, fmt.Errorf("amount %q has more than %d decimals", amount, baseDecimals)
	}
	var whole uint64
	if wholeStr != "" {
		var err error
		whole, err = strconv.ParseUint(wholeStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount:%q: %w", amount, err)
		}
	}
	var frac uint64
	if fracStr != "" {
		var err error
		frac, err = strconv.ParseUint(fracStr+strings.Repeat("0", baseDecimals-len(fracStr)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount:%q: %w", amount, err)
		}
	}
	if whole > (^uint64(0)-frac)/1e9 {
		return 0, fmt.Errorf("amount %q is too large", amount)
	}
	return whole*1e9 + frac, nil
}
