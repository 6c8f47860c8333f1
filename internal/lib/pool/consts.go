package pool

import (
	"bytes"
	"encoding/binary"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"golang.org/x/crypto/blake2b"
)

const (
	// BaseUnitsPerCoin is the number of base units in one whole coin of the native asset.
	BaseUnitsPerCoin = 1_000_000_000

	// ShareDecimals matches the base asset so a fresh pool converts 1:1.
	ShareDecimals = 9

	// StakeSlotSpace is the storage reserved by the staking ledger for one stake slot.
	StakeSlotSpace = 200

	// Derivation seeds
	SeedConfig     = "config"
	SeedPrimary    = "stake_main"
	SeedBuffer     = "stake_reserve"
	SeedWithdrawal = "split_account"

	derivePrefix = "lstpool/derive"
)

// DeriveAddress returns the identity derived from programID and seeds.
// Derived identities have no private key; only the pool can act for them.
func DeriveAddress(programID types.Address, seeds ...[]byte) types.Address {
	msg := bytes.Join(append([][]byte{[]byte(derivePrefix), programID[:]}, seeds...), nil)
	return types.Address(blake2b.Sum256(msg))
}

// Addresses is the set of fixed identities of one pool instance.
type Addresses struct {
	Program   types.Address
	Config    types.Address
	Authority types.Address
	Primary   types.Address
	Buffer    types.Address
}

func DeriveAddresses(programID types.Address) Addresses {
	cfg := DeriveAddress(programID, []byte(SeedConfig))
	return Addresses{
		Program: programID,
		Config:  cfg,
		// the config record's identity signs for every slot and the share mint
		Authority: cfg,
		Primary:   DeriveAddress(programID, []byte(SeedPrimary)),
		Buffer:    DeriveAddress(programID, []byte(SeedBuffer)),
	}
}

// WithdrawalSlotAddress is the slot holding owner's withdrawal number nonce.
func WithdrawalSlotAddress(programID types.Address, owner types.Address, nonce uint64) types.Address {
	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, nonce)
	return DeriveAddress(programID, []byte(SeedWithdrawal), owner[:], nonceBytes)
}

// Params are the policy constants of a pool. They are fixed for the life of a process.
type Params struct {
	// MinimumDeposit is the smallest accepted deposit, in base units.
	MinimumDeposit uint64 `toml:"min_deposit"`
	// MinimumWithdrawal is the asset minimum of a withdrawal; the ledger's rent
	// reserve for a stake slot is added on top.
	MinimumWithdrawal uint64 `toml:"min_withdrawal"`
	// SetupStake is delegated to the primary slot at setup and minted 1:1 to the initializer.
	SetupStake uint64 `toml:"setup_stake"`
}

func DefaultParams() Params {
	return Params{
		MinimumDeposit:    BaseUnitsPerCoin,
		MinimumWithdrawal: BaseUnitsPerCoin,
		SetupStake:        BaseUnitsPerCoin,
	}
}
