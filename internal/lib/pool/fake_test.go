package pool

import (
	"fmt"
	"maps"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// fakeTxn is an in-memory Txn without epochs: tests move slots between statuses directly.
type fakeTxn struct {
	slots    map[types.Address]*SlotInfo
	balances map[types.Address]uint64
	shares   map[types.Address]uint64
	records  map[types.Address][]byte
	agents   map[types.Address]bool

	mint       types.Address
	mintAuth   types.Address
	mintExists bool
	supply     uint64

	rent          uint64
	minDelegation uint64
}

func newFakeTxn() *fakeTxn {
	return &fakeTxn{
		slots:    map[types.Address]*SlotInfo{},
		balances: map[types.Address]uint64{},
		shares:   map[types.Address]uint64{},
		records:  map[types.Address][]byte{},
		agents:   map[types.Address]bool{},
	}
}

func (f *fakeTxn) ID() string { return "fake" }

// clone deep-copies the fake so a failed operation can be undone like a discarded
// transaction.
func (f *fakeTxn) clone() *fakeTxn {
	out := *f
	out.slots = make(map[types.Address]*SlotInfo, len(f.slots))
	for addr, si := range f.slots {
		cp := *si
		out.slots[addr] = &cp
	}
	out.balances = maps.Clone(f.balances)
	out.shares = maps.Clone(f.shares)
	out.records = maps.Clone(f.records)
	out.agents = maps.Clone(f.agents)
	return &out
}

// atomic runs fn and rolls every change back if it fails.
func (f *fakeTxn) atomic(fn func() error) error {
	snapshot := f.clone()
	if err := fn(); err != nil {
		*f = *snapshot
		return err
	}
	return nil
}

func (f *fakeTxn) slot(authority, addr types.Address) (*SlotInfo, error) {
	si, ok := f.slots[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, addr)
	}
	if si.Authority != authority {
		return nil, ErrUnauthorized
	}
	return si, nil
}

func (f *fakeTxn) CreateSlot(payer, slot, authority types.Address, amount uint64) error {
	if _, ok := f.slots[slot]; ok {
		return ErrSlotAlreadyExists
	}
	if f.balances[payer] < amount {
		return ErrInsufficientFunds
	}
	f.balances[payer] -= amount
	f.slots[slot] = &SlotInfo{Address: slot, Status: StatusUninitialized, Balance: amount, Authority: authority}
	return nil
}

func (f *fakeTxn) Delegate(authority, slot, agent types.Address) error {
	si, err := f.slot(authority, slot)
	if err != nil {
		return err
	}
	if si.Status.Delegated() {
		return ErrSlotAlreadyDelegated
	}
	si.Status = StatusActivating
	si.Agent = agent
	return nil
}

func (f *fakeTxn) Split(authority, source, dest types.Address, amount uint64) error {
	src, err := f.slot(authority, source)
	if err != nil {
		return err
	}
	dst, err := f.slot(authority, dest)
	if err != nil {
		return err
	}
	if amount > src.Balance || src.Balance-amount < f.rent+f.minDelegation {
		return ErrInsufficientFunds
	}
	src.Balance -= amount
	dst.Balance += amount
	dst.Status = src.Status
	dst.Agent = src.Agent
	return nil
}

func (f *fakeTxn) Deactivate(authority, slot types.Address) error {
	si, err := f.slot(authority, slot)
	if err != nil {
		return err
	}
	if err = si.CheckSplitSource(); err != nil {
		return err
	}
	si.Status = StatusDeactivating
	return nil
}

func (f *fakeTxn) Merge(authority, dst, src types.Address) error {
	into, err := f.slot(authority, dst)
	if err != nil {
		return err
	}
	from, err := f.slot(authority, src)
	if err != nil {
		return err
	}
	if err = CheckMerge(*into, *from); err != nil {
		return err
	}
	into.Balance += from.Balance
	from.Balance = 0
	from.Status = StatusUninitialized
	from.Agent = types.ZeroAddress
	return nil
}

func (f *fakeTxn) Withdraw(authority, slot, destination types.Address, amount uint64) error {
	si, err := f.slot(authority, slot)
	if err != nil {
		return err
	}
	if err = si.CheckWithdraw(); err != nil {
		return err
	}
	if amount > si.Balance {
		return ErrInsufficientFunds
	}
	si.Balance -= amount
	if si.Balance == 0 {
		delete(f.slots, slot)
	}
	f.balances[destination] += amount
	return nil
}

func (f *fakeTxn) QueryState(slot types.Address) (SlotInfo, error) {
	si, ok := f.slots[slot]
	if !ok {
		return SlotInfo{Address: slot}, nil
	}
	return *si, nil
}

func (f *fakeTxn) MinimumBalance(int) uint64 { return f.rent }
func (f *fakeTxn) MinimumDelegation() uint64 { return f.minDelegation }
func (f *fakeTxn) IsAgent(agent types.Address) bool { return f.agents[agent] }

func (f *fakeTxn) InitMint(payer, mint, authority types.Address, decimals uint8) error {
	if f.mintExists {
		return ErrSlotAlreadyExists
	}
	f.mint, f.mintAuth, f.mintExists = mint, authority, true
	return nil
}

func (f *fakeTxn) MintAuthority(mint types.Address) (types.Address, bool, error) {
	if !f.mintExists || mint != f.mint {
		return types.ZeroAddress, false, nil
	}
	return f.mintAuth, true, nil
}

func (f *fakeTxn) Mint(authority, mint, to types.Address, amount uint64) error {
	if authority != f.mintAuth || mint != f.mint {
		return ErrUnauthorized
	}
	f.supply += amount
	f.shares[to] += amount
	return nil
}

func (f *fakeTxn) Burn(owner, mint types.Address, amount uint64) error {
	if f.shares[owner] < amount {
		return ErrInsufficientShareBalance
	}
	f.shares[owner] -= amount
	f.supply -= amount
	return nil
}

func (f *fakeTxn) BalanceOf(mint, holder types.Address) (uint64, error) {
	return f.shares[holder], nil
}

func (f *fakeTxn) TotalSupply(mint types.Address) (uint64, error) {
	return f.supply, nil
}

func (f *fakeTxn) Transfer(from, to types.Address, amount uint64) error {
	if f.balances[from] < amount {
		return ErrInsufficientFunds
	}
	f.balances[from] -= amount
	if si, ok := f.slots[to]; ok {
		si.Balance += amount
		return nil
	}
	f.balances[to] += amount
	return nil
}

func (f *fakeTxn) Balance(addr types.Address) (uint64, error) {
	if si, ok := f.slots[addr]; ok {
		return si.Balance, nil
	}
	return f.balances[addr], nil
}

func (f *fakeTxn) CreateRecord(payer, addr, owner types.Address, data []byte) error {
	if _, ok := f.records[addr]; ok {
		return ErrConfigAlreadyInitialized
	}
	f.records[addr] = data
	return nil
}

func (f *fakeTxn) UseLease(caller types.Address, lease [16]byte) error {
	return nil
}

func (f *fakeTxn) Record(addr types.Address) ([]byte, error) {
	data, ok := f.records[addr]
	if !ok {
		return nil, ErrConfigNotInitialized
	}
	return data, nil
}

var _ Txn = (*fakeTxn)(nil)
