package chain

// Params are the economic constants of the simulated ledger.
type Params struct {
	// RentPerByte is charged per byte of allocated space (plus AccountOverhead) and
	// multiplied by RentExemptionFactor to get an allocation's rent reserve.
	RentPerByte         uint64 `toml:"rent_per_byte"`
	RentExemptionFactor uint64 `toml:"rent_exemption_factor"`
	AccountOverhead     int    `toml:"account_overhead"`
	// MinimumDelegation is the smallest stake that can be delegated or split off.
	MinimumDelegation uint64 `toml:"min_delegation"`
}

func DefaultParams() Params {
	return Params{
		RentPerByte:         3480,
		RentExemptionFactor: 2,
		AccountOverhead:     128,
		MinimumDelegation:   1,
	}
}

// MinimumBalance is the rent reserve for an allocation of space bytes.
func (p Params) MinimumBalance(space int) uint64 {
	return uint64(p.AccountOverhead+space) * p.RentPerByte * p.RentExemptionFactor
}

const mintSpace = 82
