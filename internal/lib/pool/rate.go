package pool

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SharesForDeposit returns the shares minted for depositing amount base units into a
// pool holding totalShares shares against totalManaged base units.
// An empty pool (no shares, or nothing managed) converts 1:1.
func SharesForDeposit(amount, totalShares, totalManaged uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if totalShares == 0 || totalManaged == 0 {
		return amount, nil
	}
	shares, err := mulDiv(amount, totalShares, totalManaged)
	if err != nil {
		return 0, fmt.Errorf("shares for deposit of %d: %w", amount, err)
	}
	return shares, nil
}

// SharesToBurn returns the shares that must be burned to withdraw amount base units.
// totalManaged must already include the amount being moved into the withdrawal slot.
func SharesToBurn(amount, totalShares, totalManaged uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	shares, err := mulDiv(amount, totalShares, totalManaged)
	if err != nil {
		return 0, fmt.Errorf("shares to burn for %d: %w", amount, err)
	}
	return shares, nil
}

// RedeemableValue is the base amount a holder of shares could claim at the current rate.
func RedeemableValue(shares, totalShares, totalManaged uint64) (uint64, error) {
	if shares == 0 || totalManaged == 0 {
		return 0, nil
	}
	return mulDiv(shares, totalManaged, totalShares)
}

// mulDiv computes floor(a*b/c) with a 256-bit intermediate product.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrArithmeticOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow {
		return 0, ErrArithmeticOverflow
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(c))
	if !quotient.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return quotient.Uint64(), nil
}

// ExchangeRate is the ratio of managed base units to outstanding shares.
type ExchangeRate struct {
	Managed uint64
	Shares  uint64
}

// Float is for display only.
func (r ExchangeRate) Float() float64 {
	if r.Shares == 0 || r.Managed == 0 {
		return 1
	}
	return float64(r.Managed) / float64(r.Shares)
}

// Less reports whether r is strictly lower than other, compared exactly.
func (r ExchangeRate) Less(other ExchangeRate) bool {
	lhs := new(uint256.Int).Mul(uint256.NewInt(r.Managed), uint256.NewInt(other.Shares))
	rhs := new(uint256.Int).Mul(uint256.NewInt(other.Managed), uint256.NewInt(r.Shares))
	return lhs.Lt(rhs)
}

func (r ExchangeRate) String() string {
	return fmt.Sprintf("%.9f", r.Float())
}
