package chain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/TxnLab/lstpool/internal/lib/misc"
	"github.com/TxnLab/lstpool/internal/lib/pool"
)

// Txn buffers writes over the committed state until commit. It implements pool.Txn.
type Txn struct {
	id    string
	chain *Chain
	epoch uint64

	// pending writes, nil value is a delete
	writes map[string][]byte
	// first storage error seen by a method that can't return one
	err error
}

func (tx *Txn) ID() string {
	return tx.id
}

func (tx *Txn) Epoch() uint64 {
	return tx.epoch
}

func (tx *Txn) get(key []byte) ([]byte, error) {
	if val, found := tx.writes[string(key)]; found {
		return val, nil
	}
	val, err := tx.chain.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return val, err
}

func (tx *Txn) put(key, val []byte) {
	tx.writes[string(key)] = val
}

func (tx *Txn) del(key []byte) {
	tx.writes[string(key)] = nil
}

func (tx *Txn) commit() error {
	batch := new(leveldb.Batch)
	for key, val := range tx.writes {
		if val == nil {
			batch.Delete([]byte(key))
		} else {
			batch.Put([]byte(key), val)
		}
	}
	if err := tx.chain.db.Write(batch, nil); err != nil {
		return fmt.Errorf("committing txn %s: %w", tx.id, err)
	}
	misc.Debugf(tx.chain.logger, "txn %s committed, epoch:%d, writes:%d", tx.id, tx.epoch, len(tx.writes))
	return nil
}

func (tx *Txn) account(addr types.Address) (*account, error) {
	data, err := tx.get(accountKey(addr))
	if err != nil || data == nil {
		return nil, err
	}
	acct := &account{}
	if err = decode(data, acct); err != nil {
		return nil, fmt.Errorf("decoding account %s: %w", addr, err)
	}
	return acct, nil
}

func (tx *Txn) putAccount(addr types.Address, acct *account) {
	tx.put(accountKey(addr), encode(acct))
}

// accounts returns every stake slot as seen by this transaction.
func (tx *Txn) accounts() (map[types.Address]*account, error) {
	slots, err := tx.chain.stakeAccounts()
	if err != nil {
		return nil, err
	}
	for key, val := range tx.writes {
		if !bytes.HasPrefix([]byte(key), []byte(prefixAccount)) {
			continue
		}
		var addr types.Address
		copy(addr[:], key[len(prefixAccount):])
		delete(slots, addr)
		if val == nil {
			continue
		}
		acct := &account{}
		if err = decode(val, acct); err != nil {
			return nil, err
		}
		if acct.Kind == kindStake {
			slots[addr] = acct
		}
	}
	return slots, nil
}

func (tx *Txn) credit(addr types.Address, amount uint64) error {
	acct, err := tx.account(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &account{Kind: kindSystem}
	}
	if acct.Balance+amount < acct.Balance {
		return fmt.Errorf("crediting %s: %w", addr, pool.ErrArithmeticOverflow)
	}
	acct.Balance += amount
	tx.putAccount(addr, acct)
	return nil
}

// debit takes amount from a plain account; only plain accounts can be spent by their owner.
func (tx *Txn) debit(addr types.Address, amount uint64) error {
	acct, err := tx.account(addr)
	if err != nil {
		return err
	}
	if acct == nil || acct.Balance < amount {
		var have uint64
		if acct != nil {
			have = acct.Balance
		}
		return fmt.Errorf("%w: %s holds %d, needs %d", pool.ErrInsufficientFunds, addr, have, amount)
	}
	if acct.Kind != kindSystem {
		return fmt.Errorf("%w: %s can't be spent directly", pool.ErrUnauthorized, addr)
	}
	acct.Balance -= amount
	if acct.Balance == 0 {
		tx.del(accountKey(addr))
	} else {
		tx.putAccount(addr, acct)
	}
	return nil
}

// stakeSlot loads the stake slot at addr.
func (tx *Txn) stakeSlot(addr types.Address) (*account, error) {
	acct, err := tx.account(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %s", pool.ErrSlotNotFound, addr)
	}
	if acct.Kind != kindStake {
		return nil, fmt.Errorf("%w: %s", ErrNotStakeSlot, addr)
	}
	return acct, nil
}

// authorizedSlot loads the stake slot at addr and checks authority controls it.
func (tx *Txn) authorizedSlot(authority, addr types.Address) (*account, error) {
	acct, err := tx.stakeSlot(addr)
	if err != nil {
		return nil, err
	}
	if acct.Authority != authority {
		return nil, fmt.Errorf("%w: %s is not the authority of %s", pool.ErrUnauthorized, authority, addr)
	}
	return acct, nil
}

func (tx *Txn) rent() uint64 {
	return tx.chain.params.MinimumBalance(pool.StakeSlotSpace)
}

// ---- pool.StakeLedger

func (tx *Txn) CreateSlot(payer, slot, authority types.Address, amount uint64) error {
	existing, err := tx.account(slot)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", pool.ErrSlotAlreadyExists, slot)
	}
	if rent := tx.rent(); amount < rent {
		return fmt.Errorf("%w: slot needs at least %d, got %d", pool.ErrInsufficientFunds, rent, amount)
	}
	if err = tx.debit(payer, amount); err != nil {
		return err
	}
	tx.putAccount(slot, &account{Kind: kindStake, Balance: amount, Authority: authority})
	return nil
}

func (tx *Txn) Delegate(authority, slot, agent types.Address) error {
	acct, err := tx.authorizedSlot(authority, slot)
	if err != nil {
		return err
	}
	if acct.Delegated {
		return fmt.Errorf("%w: %s", pool.ErrSlotAlreadyDelegated, slot)
	}
	if !tx.IsAgent(agent) {
		return fmt.Errorf("%w: %s", pool.ErrInvalidAgent, agent)
	}
	if viable := tx.rent() + tx.MinimumDelegation(); acct.Balance < viable {
		return fmt.Errorf("%w: %s holds %d, needs %d to delegate", pool.ErrInsufficientFunds, slot, acct.Balance, viable)
	}
	acct.Delegated = true
	acct.Agent = agent
	acct.ActivatedAt = tx.epoch
	acct.Deactivated = false
	tx.putAccount(slot, acct)
	return nil
}

func (tx *Txn) Split(authority, source, dest types.Address, amount uint64) error {
	src, err := tx.authorizedSlot(authority, source)
	if err != nil {
		return err
	}
	dst, err := tx.authorizedSlot(authority, dest)
	if err != nil {
		return err
	}
	if source == dest {
		return fmt.Errorf("%w: split onto itself", pool.ErrInvalidAmount)
	}
	if status := src.status(tx.epoch); status != pool.StatusActive && status != pool.StatusActivating {
		return fmt.Errorf("%w: %s is %s", pool.ErrSlotNotActive, source, status)
	}
	if dst.Delegated {
		return fmt.Errorf("%w: %s", pool.ErrSlotAlreadyDelegated, dest)
	}
	if amount < tx.MinimumDelegation() {
		return fmt.Errorf("%w: split of %d is under the minimum delegation", pool.ErrInsufficientFunds, amount)
	}
	if amount > src.Balance || src.Balance-amount < tx.rent()+tx.MinimumDelegation() {
		return fmt.Errorf("%w: %s holds %d, can't split %d", pool.ErrInsufficientFunds, source, src.Balance, amount)
	}
	if dst.Balance+amount < dst.Balance {
		return pool.ErrArithmeticOverflow
	}
	src.Balance -= amount
	dst.Balance += amount
	dst.Delegated = true
	dst.Agent = src.Agent
	dst.ActivatedAt = src.ActivatedAt
	tx.putAccount(source, src)
	tx.putAccount(dest, dst)
	return nil
}

func (tx *Txn) Deactivate(authority, slot types.Address) error {
	acct, err := tx.authorizedSlot(authority, slot)
	if err != nil {
		return err
	}
	if status := acct.status(tx.epoch); status != pool.StatusActive && status != pool.StatusActivating {
		return fmt.Errorf("%w: %s is %s", pool.ErrSlotNotActive, slot, status)
	}
	acct.Deactivated = true
	acct.DeactivatedAt = tx.epoch
	tx.putAccount(slot, acct)
	return nil
}

func (tx *Txn) Merge(authority, dst, src types.Address) error {
	if dst == src {
		return fmt.Errorf("%w: merge of %s onto itself", pool.ErrSlotNotActive, dst)
	}
	into, err := tx.authorizedSlot(authority, dst)
	if err != nil {
		return err
	}
	from, err := tx.authorizedSlot(authority, src)
	if err != nil {
		return err
	}
	if err = pool.CheckMerge(into.slotInfo(dst, tx.epoch), from.slotInfo(src, tx.epoch)); err != nil {
		return err
	}
	if into.Balance+from.Balance < into.Balance {
		return pool.ErrArithmeticOverflow
	}
	into.Balance += from.Balance
	from.Balance = 0
	from.undelegate()
	tx.putAccount(dst, into)
	tx.putAccount(src, from)
	return nil
}

func (tx *Txn) Withdraw(authority, slot, destination types.Address, amount uint64) error {
	acct, err := tx.authorizedSlot(authority, slot)
	if err != nil {
		return err
	}
	if status := acct.status(tx.epoch); status != pool.StatusInactive && status != pool.StatusUninitialized {
		return fmt.Errorf("%w: %s is %s", pool.ErrCooldownNotElapsed, slot, status)
	}
	if amount > acct.Balance {
		return fmt.Errorf("%w: %s holds %d, can't withdraw %d", pool.ErrInsufficientFunds, slot, acct.Balance, amount)
	}
	remaining := acct.Balance - amount
	if remaining != 0 && remaining < tx.rent() {
		return fmt.Errorf("%w: withdrawal would leave %s under its rent reserve", pool.ErrInsufficientFunds, slot)
	}
	if remaining == 0 {
		tx.del(accountKey(slot))
	} else {
		acct.Balance = remaining
		tx.putAccount(slot, acct)
	}
	return tx.credit(destination, amount)
}

func (tx *Txn) QueryState(slot types.Address) (pool.SlotInfo, error) {
	acct, err := tx.account(slot)
	if err != nil {
		return pool.SlotInfo{}, err
	}
	return acct.slotInfo(slot, tx.epoch), nil
}

func (tx *Txn) MinimumBalance(space int) uint64 {
	return tx.chain.params.MinimumBalance(space)
}

func (tx *Txn) MinimumDelegation() uint64 {
	return tx.chain.params.MinimumDelegation
}

func (tx *Txn) IsAgent(agent types.Address) bool {
	data, err := tx.get(agentKey(agent))
	if err != nil {
		tx.fail(err)
		return false
	}
	return data != nil
}

func (tx *Txn) fail(err error) {
	if tx.err == nil {
		tx.err = err
	}
}

// ---- pool.TokenService

func (tx *Txn) mint(mint types.Address) (*mintState, error) {
	data, err := tx.get(mintKey(mint))
	if err != nil || data == nil {
		return nil, err
	}
	state := &mintState{}
	if err = decode(data, state); err != nil {
		return nil, fmt.Errorf("decoding mint %s: %w", mint, err)
	}
	return state, nil
}

func (tx *Txn) existingMint(mint types.Address) (*mintState, error) {
	state, err := tx.mint(mint)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
	}
	return state, nil
}

func (tx *Txn) InitMint(payer, mint, authority types.Address, decimals uint8) error {
	existing, err := tx.mint(mint)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: mint %s", pool.ErrSlotAlreadyExists, mint)
	}
	reserve := tx.MinimumBalance(mintSpace)
	if err = tx.debit(payer, reserve); err != nil {
		return err
	}
	tx.put(mintKey(mint), encode(&mintState{Authority: authority, Decimals: decimals, Reserve: reserve}))
	return nil
}

func (tx *Txn) MintAuthority(mint types.Address) (types.Address, bool, error) {
	state, err := tx.mint(mint)
	if err != nil || state == nil {
		return types.ZeroAddress, false, err
	}
	return state.Authority, true, nil
}

func (tx *Txn) Mint(authority, mint, to types.Address, amount uint64) error {
	state, err := tx.existingMint(mint)
	if err != nil {
		return err
	}
	if state.Authority != authority {
		return fmt.Errorf("%w: %s can't mint %s", pool.ErrUnauthorized, authority, mint)
	}
	held, err := tx.BalanceOf(mint, to)
	if err != nil {
		return err
	}
	if state.Supply+amount < state.Supply {
		return fmt.Errorf("minting %d: %w", amount, pool.ErrArithmeticOverflow)
	}
	state.Supply += amount
	tx.put(mintKey(mint), encode(state))
	tx.put(tokenKey(mint, to), encodeUint64(held+amount))
	return nil
}

func (tx *Txn) Burn(owner, mint types.Address, amount uint64) error {
	state, err := tx.existingMint(mint)
	if err != nil {
		return err
	}
	held, err := tx.BalanceOf(mint, owner)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: %s holds %d, burning %d", pool.ErrInsufficientShareBalance, owner, held, amount)
	}
	state.Supply -= amount
	tx.put(mintKey(mint), encode(state))
	if held == amount {
		tx.del(tokenKey(mint, owner))
	} else {
		tx.put(tokenKey(mint, owner), encodeUint64(held-amount))
	}
	return nil
}

func (tx *Txn) BalanceOf(mint, holder types.Address) (uint64, error) {
	data, err := tx.get(tokenKey(mint, holder))
	if err != nil {
		return 0, err
	}
	return decodeUint64(data), nil
}

func (tx *Txn) TotalSupply(mint types.Address) (uint64, error) {
	state, err := tx.existingMint(mint)
	if err != nil {
		return 0, err
	}
	return state.Supply, nil
}

// ---- pool.AccountStore

func (tx *Txn) Transfer(from, to types.Address, amount uint64) error {
	if amount == 0 {
		return pool.ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	if err := tx.debit(from, amount); err != nil {
		return err
	}
	return tx.credit(to, amount)
}

func (tx *Txn) Balance(addr types.Address) (uint64, error) {
	acct, err := tx.account(addr)
	if err != nil || acct == nil {
		return 0, err
	}
	return acct.Balance, nil
}

func (tx *Txn) CreateRecord(payer, addr, owner types.Address, data []byte) error {
	existing, err := tx.account(addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", pool.ErrConfigAlreadyInitialized, addr)
	}
	reserve := tx.MinimumBalance(len(data))
	if err = tx.debit(payer, reserve); err != nil {
		return err
	}
	tx.putAccount(addr, &account{Kind: kindRecord, Balance: reserve, Owner: owner, Data: data})
	return nil
}

func (tx *Txn) Record(addr types.Address) ([]byte, error) {
	acct, err := tx.account(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Kind != kindRecord {
		return nil, fmt.Errorf("%w: no record at %s", pool.ErrConfigNotInitialized, addr)
	}
	return acct.Data, nil
}

// UseLease records the lease with the epoch it was first used in. Leases are never
// released.
func (tx *Txn) UseLease(caller types.Address, lease [16]byte) error {
	key := leaseKey(caller, lease)
	data, err := tx.get(key)
	if err != nil {
		return err
	}
	if data != nil {
		return fmt.Errorf("%w: used by %s in epoch %d", pool.ErrRequestReplayed, caller, decodeUint64(data))
	}
	tx.put(key, encodeUint64(tx.epoch))
	return nil
}

var _ pool.Txn = (*Txn)(nil)
var _ pool.Chain = (*Chain)(nil)
