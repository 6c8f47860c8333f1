package pool

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Chain is the shared ledger every pool operation runs against.
// Atomic runs fn as one transaction: all writes made through tx commit together
// when fn returns nil and none are applied otherwise. Transactions are serialized.
type Chain interface {
	Atomic(ctx context.Context, fn func(tx Txn) error) error
}

// Txn is the view of the ledger inside one transaction.
type Txn interface {
	// ID identifies the transaction once committed.
	ID() string

	StakeLedger
	TokenService
	AccountStore
}

// StakeLedger holds stake slots and applies the activation/deactivation rules.
// Every mutating call is made on behalf of authority, which must match the
// authority the slot was allocated with.
type StakeLedger interface {
	// CreateSlot allocates an undelegated stake slot at slot, moving amount from payer.
	CreateSlot(payer, slot, authority types.Address, amount uint64) error
	// Delegate delegates everything above the slot's rent reserve to agent.
	Delegate(authority, slot, agent types.Address) error
	// Split moves amount out of source into dest, an allocated undelegated slot.
	// dest inherits the delegation of source.
	Split(authority, source, dest types.Address, amount uint64) error
	Deactivate(authority, slot types.Address) error
	// Merge moves the whole balance of src into dst. src stays allocated and undelegated.
	Merge(authority, dst, src types.Address) error
	// Withdraw pays amount from a slot that is no longer delegated. A slot withdrawn to
	// zero is reclaimed.
	Withdraw(authority, slot, destination types.Address, amount uint64) error
	QueryState(slot types.Address) (SlotInfo, error)

	// MinimumBalance is the rent reserve for an allocation of space bytes.
	MinimumBalance(space int) uint64
	// MinimumDelegation is the smallest stake the ledger will delegate.
	MinimumDelegation() uint64
	IsAgent(agent types.Address) bool
}

// TokenService is the fungible share token.
type TokenService interface {
	// InitMint creates mint with authority as its sole minter. It fails with
	// ErrSlotAlreadyExists if the mint exists.
	InitMint(payer, mint, authority types.Address, decimals uint8) error
	MintAuthority(mint types.Address) (types.Address, bool, error)
	Mint(authority, mint, to types.Address, amount uint64) error
	Burn(owner, mint types.Address, amount uint64) error
	BalanceOf(mint, holder types.Address) (uint64, error)
	TotalSupply(mint types.Address) (uint64, error)
}

// AccountStore holds plain balances and data records.
type AccountStore interface {
	Transfer(from, to types.Address, amount uint64) error
	Balance(addr types.Address) (uint64, error)
	// CreateRecord stores data at addr paying its rent from payer. It fails with
	// ErrConfigAlreadyInitialized if addr already holds a record.
	CreateRecord(payer, addr, owner types.Address, data []byte) error
	// Record returns the data at addr or ErrConfigNotInitialized.
	Record(addr types.Address) ([]byte, error)
	// UseLease claims lease for caller. A lease can be claimed once; a second claim
	// fails with ErrRequestReplayed.
	UseLease(caller types.Address, lease [16]byte) error
}
