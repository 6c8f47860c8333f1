package pool

import (
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// StakeStatus is the staking ledger's view of a stake slot.
type StakeStatus uint8

const (
	// StatusNone - nothing allocated at the identity
	StatusNone StakeStatus = iota
	// StatusUninitialized - allocated and funded but not delegated
	StatusUninitialized
	StatusActivating
	StatusActive
	StatusDeactivating
	StatusInactive
)

func (s StakeStatus) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusUninitialized:
		return "uninitialized"
	case StatusActivating:
		return "activating"
	case StatusActive:
		return "active"
	case StatusDeactivating:
		return "deactivating"
	case StatusInactive:
		return "inactive"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Delegated reports whether stake is (or was) delegated to an agent.
func (s StakeStatus) Delegated() bool {
	return s >= StatusActivating
}

// SlotInfo is what the staking ledger reports for one stake slot.
type SlotInfo struct {
	Address   types.Address
	Status    StakeStatus
	Balance   uint64
	Agent     types.Address
	Authority types.Address
}

func (si SlotInfo) Exists() bool {
	return si.Status != StatusNone
}

// SlotState is the pool-level lifecycle of a stake slot.
type SlotState uint8

const (
	SlotUninitialized SlotState = iota
	SlotActive
	SlotDeactivating
	SlotWithdrawn
)

func (s SlotState) String() string {
	switch s {
	case SlotUninitialized:
		return "Uninitialized"
	case SlotActive:
		return "Active"
	case SlotDeactivating:
		return "Deactivating"
	case SlotWithdrawn:
		return "Withdrawn"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// State maps the ledger status onto the pool lifecycle. Activating slots count as
// Active since they are delegated and can only move forward.
func (si SlotInfo) State() SlotState {
	switch si.Status {
	case StatusActivating, StatusActive:
		return SlotActive
	case StatusDeactivating:
		return SlotDeactivating
	case StatusInactive:
		// fully deactivated but not yet paid out
		return SlotDeactivating
	case StatusNone:
		return SlotWithdrawn
	}
	return SlotUninitialized
}

// CheckActivate validates Uninitialized -> Active for a slot holding the given
// balance, where viable is the ledger's minimum balance for a delegated slot.
func (si SlotInfo) CheckActivate(viable uint64) error {
	if si.Status == StatusNone {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, si.Address)
	}
	if si.Status.Delegated() {
		return fmt.Errorf("%w: %s is %s", ErrSlotAlreadyDelegated, si.Address, si.Status)
	}
	if si.Balance == 0 || si.Balance < viable {
		return fmt.Errorf("%w: %s holds %d, needs %d to delegate", ErrInsufficientFunds, si.Address, si.Balance, viable)
	}
	return nil
}

// CheckMerge validates merging src into dst: both fully active and delegated to the same agent.
func CheckMerge(dst, src SlotInfo) error {
	for _, si := range []SlotInfo{dst, src} {
		if si.Status != StatusActive {
			return fmt.Errorf("%w: %s is %s", ErrSlotNotActive, si.Address, si.Status)
		}
	}
	if dst.Agent != src.Agent {
		return fmt.Errorf("%w: %s vs %s", ErrDelegationMismatch, dst.Agent, src.Agent)
	}
	return nil
}

// CheckSplitSource validates that stake can be split out of si.
func (si SlotInfo) CheckSplitSource() error {
	if si.Status != StatusActive && si.Status != StatusActivating {
		return fmt.Errorf("%w: %s is %s", ErrSlotNotActive, si.Address, si.Status)
	}
	return nil
}

// CheckWithdraw validates Deactivating -> Withdrawn.
func (si SlotInfo) CheckWithdraw() error {
	switch si.Status {
	case StatusNone:
		return fmt.Errorf("%w: %s", ErrSlotNotFound, si.Address)
	case StatusInactive:
		return nil
	}
	return fmt.Errorf("%w: %s is %s", ErrCooldownNotElapsed, si.Address, si.Status)
}
