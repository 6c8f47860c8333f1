package pool

import (
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
)

func TestSlotState(t *testing.T) {
	tests := []struct {
		status StakeStatus
		want   SlotState
	}{
		{StatusNone, SlotWithdrawn},
		{StatusUninitialized, SlotUninitialized},
		{StatusActivating, SlotActive},
		{StatusActive, SlotActive},
		{StatusDeactivating, SlotDeactivating},
		{StatusInactive, SlotDeactivating},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SlotInfo{Status: tt.status}.State(), tt.status.String())
	}
}

func TestSlotStateString(t *testing.T) {
	assert.Equal(t, "Uninitialized", SlotUninitialized.String())
	assert.Equal(t, "Active", SlotActive.String())
	assert.Equal(t, "Deactivating", SlotDeactivating.String())
	assert.Equal(t, "Withdrawn", SlotWithdrawn.String())
	assert.NotPanics(t, func() {
		assert.Equal(t, "state(9)", SlotState(9).String())
	})
	assert.Equal(t, "status(200)", StakeStatus(200).String())
}

func TestCheckActivate(t *testing.T) {
	assert.ErrorIs(t, SlotInfo{}.CheckActivate(10), ErrSlotNotFound)
	assert.ErrorIs(t, SlotInfo{Status: StatusUninitialized}.CheckActivate(0), ErrInsufficientFunds)
	assert.ErrorIs(t, SlotInfo{Status: StatusUninitialized, Balance: 9}.CheckActivate(10), ErrInsufficientFunds)
	assert.NoError(t, SlotInfo{Status: StatusUninitialized, Balance: 10}.CheckActivate(10))
	for _, s := range []StakeStatus{StatusActivating, StatusActive, StatusDeactivating, StatusInactive} {
		assert.ErrorIs(t, SlotInfo{Status: s, Balance: 100}.CheckActivate(10), ErrSlotAlreadyDelegated)
	}
}

func TestCheckMerge(t *testing.T) {
	agent := types.Address{1}
	active := SlotInfo{Status: StatusActive, Agent: agent}

	assert.NoError(t, CheckMerge(active, active))
	for _, s := range []StakeStatus{StatusUninitialized, StatusActivating, StatusDeactivating, StatusInactive} {
		other := SlotInfo{Status: s, Agent: agent}
		assert.ErrorIs(t, CheckMerge(active, other), ErrSlotNotActive, s.String())
		assert.ErrorIs(t, CheckMerge(other, active), ErrSlotNotActive, s.String())
	}
	assert.ErrorIs(t, CheckMerge(active, SlotInfo{Status: StatusActive, Agent: types.Address{2}}), ErrDelegationMismatch)
}

func TestCheckWithdraw(t *testing.T) {
	assert.ErrorIs(t, SlotInfo{}.CheckWithdraw(), ErrSlotNotFound)
	assert.NoError(t, SlotInfo{Status: StatusInactive}.CheckWithdraw())
	for _, s := range []StakeStatus{StatusUninitialized, StatusActivating, StatusActive, StatusDeactivating} {
		assert.ErrorIs(t, SlotInfo{Status: s}.CheckWithdraw(), ErrCooldownNotElapsed, s.String())
	}
}

func TestCheckSplitSource(t *testing.T) {
	assert.NoError(t, SlotInfo{Status: StatusActive}.CheckSplitSource())
	assert.NoError(t, SlotInfo{Status: StatusActivating}.CheckSplitSource())
	assert.ErrorIs(t, SlotInfo{Status: StatusDeactivating}.CheckSplitSource(), ErrSlotNotActive)
	assert.ErrorIs(t, SlotInfo{Status: StatusUninitialized}.CheckSplitSource(), ErrSlotNotActive)
}
