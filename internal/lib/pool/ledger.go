package pool

import (
	"fmt"
	"math/bits"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Totals are the pool aggregates. They are always derived from the ledger, never stored.
type Totals struct {
	Shares  uint64
	Managed uint64
}

func (t Totals) Rate() ExchangeRate {
	return ExchangeRate{Managed: t.Managed, Shares: t.Shares}
}

// Withdrawal describes a withdrawal slot created by InitiateWithdrawal.
type Withdrawal struct {
	Owner        types.Address
	Nonce        uint64
	Slot         types.Address
	Amount       uint64
	SharesBurned uint64
}

// PoolLedger owns the primary, buffer and withdrawal slots of one pool and is the only
// place slot state is changed. It lives for the duration of a single transaction.
type PoolLedger struct {
	tx     Txn
	cfg    *Config
	addrs  Addresses
	params Params
}

func NewPoolLedger(tx Txn, cfg *Config, addrs Addresses, params Params) *PoolLedger {
	return &PoolLedger{tx: tx, cfg: cfg, addrs: addrs, params: params}
}

func (pl *PoolLedger) Config() *Config {
	return pl.cfg
}

// Totals reads the share supply and the balances of the primary and buffer slots.
func (pl *PoolLedger) Totals() (Totals, error) {
	supply, err := pl.tx.TotalSupply(pl.cfg.ShareMint)
	if err != nil {
		return Totals{}, err
	}
	primary, err := pl.tx.QueryState(pl.cfg.PrimarySlot)
	if err != nil {
		return Totals{}, err
	}
	buffer, err := pl.tx.QueryState(pl.cfg.BufferSlot)
	if err != nil {
		return Totals{}, err
	}
	managed, carry := bits.Add64(primary.Balance, buffer.Balance, 0)
	if carry != 0 {
		return Totals{}, fmt.Errorf("%w: managed total", ErrArithmeticOverflow)
	}
	return Totals{Shares: supply, Managed: managed}, nil
}

// slotRent is the reserve the ledger keeps in every stake slot.
func (pl *PoolLedger) slotRent() uint64 {
	return pl.tx.MinimumBalance(StakeSlotSpace)
}

// WithdrawalFloor is the smallest amount InitiateWithdrawal accepts.
func (pl *PoolLedger) WithdrawalFloor() uint64 {
	return pl.params.MinimumWithdrawal + pl.slotRent()
}

// Setup allocates the primary slot with the setup stake and delegates it, allocates the
// empty buffer slot, and mints the setup stake 1:1 to initializer, who funds all of it.
func (pl *PoolLedger) Setup(initializer types.Address) (uint64, error) {
	rent := pl.slotRent()
	for _, slot := range []types.Address{pl.cfg.PrimarySlot, pl.cfg.BufferSlot} {
		info, err := pl.tx.QueryState(slot)
		if err != nil {
			return 0, err
		}
		if info.Exists() {
			return 0, fmt.Errorf("%w: %s", ErrSlotAlreadyExists, slot)
		}
	}
	if err := pl.tx.CreateSlot(initializer, pl.cfg.PrimarySlot, pl.addrs.Authority, rent+pl.params.SetupStake); err != nil {
		return 0, fmt.Errorf("creating primary slot: %w", err)
	}
	if err := pl.tx.Delegate(pl.addrs.Authority, pl.cfg.PrimarySlot, pl.cfg.Agent); err != nil {
		return 0, fmt.Errorf("delegating primary slot: %w", err)
	}
	if err := pl.tx.CreateSlot(initializer, pl.cfg.BufferSlot, pl.addrs.Authority, rent); err != nil {
		return 0, fmt.Errorf("creating buffer slot: %w", err)
	}
	shares := pl.params.SetupStake
	if err := pl.tx.Mint(pl.addrs.Authority, pl.cfg.ShareMint, initializer, shares); err != nil {
		return 0, fmt.Errorf("minting setup shares: %w", err)
	}
	return shares, nil
}

// Deposit moves amount from depositor into the buffer slot and mints the matching shares.
func (pl *PoolLedger) Deposit(depositor types.Address, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if amount < pl.params.MinimumDeposit {
		return 0, fmt.Errorf("%w: %d < %d", ErrBelowMinimumDeposit, amount, pl.params.MinimumDeposit)
	}
	totals, err := pl.Totals()
	if err != nil {
		return 0, err
	}
	shares, err := SharesForDeposit(amount, totals.Shares, totals.Managed)
	if err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, fmt.Errorf("%w: deposit of %d is worth no shares at rate %s", ErrInvalidAmount, amount, totals.Rate())
	}
	if err = pl.tx.Transfer(depositor, pl.cfg.BufferSlot, amount); err != nil {
		return 0, fmt.Errorf("deposit transfer: %w", err)
	}
	if err = pl.tx.Mint(pl.addrs.Authority, pl.cfg.ShareMint, depositor, shares); err != nil {
		return 0, fmt.Errorf("minting shares: %w", err)
	}
	return shares, nil
}

// InitiateWithdrawal splits amount out of the primary slot into a new withdrawal slot
// keyed by (owner, nonce), starts its deactivation and burns owner's shares for it.
// The slot is created and funded before the burn is priced, so a rejected withdrawal
// depends on the enclosing transaction being discarded.
func (pl *PoolLedger) InitiateWithdrawal(owner types.Address, amount, nonce uint64) (*Withdrawal, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if floor := pl.WithdrawalFloor(); amount < floor {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimumWithdrawal, amount, floor)
	}
	slot := WithdrawalSlotAddress(pl.addrs.Program, owner, nonce)
	existing, err := pl.tx.QueryState(slot)
	if err != nil {
		return nil, err
	}
	if existing.Exists() {
		return nil, fmt.Errorf("%w: withdrawal %d of %s", ErrSlotAlreadyExists, nonce, owner)
	}
	primary, err := pl.tx.QueryState(pl.cfg.PrimarySlot)
	if err != nil {
		return nil, err
	}
	if err = primary.CheckSplitSource(); err != nil {
		return nil, err
	}
	if primary.Agent != pl.cfg.Agent {
		return nil, fmt.Errorf("%w: primary slot delegated to %s", ErrDelegationMismatch, primary.Agent)
	}

	if err = pl.tx.CreateSlot(owner, slot, pl.addrs.Authority, pl.slotRent()); err != nil {
		return nil, fmt.Errorf("creating withdrawal slot: %w", err)
	}
	if err = pl.tx.Split(pl.addrs.Authority, pl.cfg.PrimarySlot, slot, amount); err != nil {
		return nil, fmt.Errorf("splitting primary slot: %w", err)
	}

	// the burn is priced against everything the pool holds once the split is done,
	// including the new slot and the reserve its owner seeded it with
	burn, err := pl.withdrawalBurn(amount, slot)
	if err != nil {
		return nil, err
	}
	held, err := pl.tx.BalanceOf(pl.cfg.ShareMint, owner)
	if err != nil {
		return nil, err
	}
	if held < burn {
		return nil, fmt.Errorf("%w: holds %d, needs %d", ErrInsufficientShareBalance, held, burn)
	}

	if err = pl.tx.Deactivate(pl.addrs.Authority, slot); err != nil {
		return nil, fmt.Errorf("deactivating withdrawal slot: %w", err)
	}
	if err = pl.tx.Burn(owner, pl.cfg.ShareMint, burn); err != nil {
		return nil, fmt.Errorf("burning shares: %w", err)
	}
	return &Withdrawal{
		Owner:        owner,
		Nonce:        nonce,
		Slot:         slot,
		Amount:       amount,
		SharesBurned: burn,
	}, nil
}

// withdrawalBurn returns the shares owed for amount, against the primary and buffer
// balances plus the balance of the freshly split withdrawal slot.
func (pl *PoolLedger) withdrawalBurn(amount uint64, slot types.Address) (uint64, error) {
	totals, err := pl.Totals()
	if err != nil {
		return 0, err
	}
	created, err := pl.tx.QueryState(slot)
	if err != nil {
		return 0, err
	}
	managed, carry := bits.Add64(totals.Managed, created.Balance, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: managed total", ErrArithmeticOverflow)
	}
	burn, err := SharesToBurn(amount, totals.Shares, managed)
	if err != nil {
		return 0, err
	}
	if burn == 0 {
		return 0, fmt.Errorf("%w: withdrawal of %d burns no shares", ErrInvalidAmount, amount)
	}
	return burn, nil
}

// FinalizeWithdrawal pays the whole balance of a fully deactivated withdrawal slot to
// its owner and returns the amount paid.
func (pl *PoolLedger) FinalizeWithdrawal(owner types.Address, nonce uint64) (uint64, error) {
	slot := WithdrawalSlotAddress(pl.addrs.Program, owner, nonce)
	info, err := pl.tx.QueryState(slot)
	if err != nil {
		return 0, err
	}
	if err = info.CheckWithdraw(); err != nil {
		return 0, err
	}
	if err = pl.tx.Withdraw(pl.addrs.Authority, slot, owner, info.Balance); err != nil {
		return 0, fmt.Errorf("withdrawing slot %s: %w", slot, err)
	}
	return info.Balance, nil
}

// ActivateBuffer delegates the buffer slot to the pool's agent and returns its balance.
func (pl *PoolLedger) ActivateBuffer() (uint64, error) {
	buffer, err := pl.tx.QueryState(pl.cfg.BufferSlot)
	if err != nil {
		return 0, err
	}
	if err = buffer.CheckActivate(pl.slotRent() + pl.tx.MinimumDelegation()); err != nil {
		return 0, err
	}
	if err = pl.tx.Delegate(pl.addrs.Authority, pl.cfg.BufferSlot, pl.cfg.Agent); err != nil {
		return 0, fmt.Errorf("delegating buffer slot: %w", err)
	}
	return buffer.Balance, nil
}

// MergeBuffer folds the fully active buffer slot into the primary slot and returns the
// amount merged. The buffer slot is left allocated and undelegated for the next batch.
func (pl *PoolLedger) MergeBuffer() (uint64, error) {
	primary, err := pl.tx.QueryState(pl.cfg.PrimarySlot)
	if err != nil {
		return 0, err
	}
	buffer, err := pl.tx.QueryState(pl.cfg.BufferSlot)
	if err != nil {
		return 0, err
	}
	if err = CheckMerge(primary, buffer); err != nil {
		return 0, err
	}
	if primary.Agent != pl.cfg.Agent {
		return 0, fmt.Errorf("%w: primary slot delegated to %s", ErrDelegationMismatch, primary.Agent)
	}
	if err = pl.tx.Merge(pl.addrs.Authority, pl.cfg.PrimarySlot, pl.cfg.BufferSlot); err != nil {
		return 0, fmt.Errorf("merging buffer slot: %w", err)
	}
	return buffer.Balance, nil
}
