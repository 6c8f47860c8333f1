package pool

import (
	"errors"
)

var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrArithmeticOverflow       = errors.New("arithmetic overflow")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientShareBalance = errors.New("insufficient share balance")
	ErrBelowMinimumDeposit      = errors.New("deposit below minimum")
	ErrBelowMinimumWithdrawal   = errors.New("withdrawal below minimum")
	ErrSlotNotActive            = errors.New("stake slot not fully active")
	ErrSlotAlreadyDelegated     = errors.New("stake slot already delegated")
	ErrDelegationMismatch       = errors.New("stake slots delegated to different agents")
	ErrCooldownNotElapsed       = errors.New("stake slot not fully deactivated")
	ErrSlotAlreadyExists        = errors.New("stake slot already exists")
	ErrSlotNotFound             = errors.New("stake slot not found")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidAgent             = errors.New("not a validating agent")
	ErrConfigAlreadyInitialized = errors.New("pool configuration already initialized")
	ErrConfigNotInitialized     = errors.New("pool configuration not initialized")
	ErrInvalidConfig            = errors.New("invalid pool configuration record")
	ErrInvalidInstruction       = errors.New("invalid instruction data")
	ErrInvalidSignature         = errors.New("invalid request signature")
	ErrRequestReplayed          = errors.New("request lease already used")
	ErrInvariantViolated        = errors.New("pool invariant violated")
)

// IsCrankPending reports whether err from ActivateBuffer, MergeBuffer or
// FinalizeWithdrawal only means the ledger hasn't reached the required state yet.
func IsCrankPending(err error) bool {
	return errors.Is(err, ErrSlotNotActive) ||
		errors.Is(err, ErrSlotAlreadyDelegated) ||
		errors.Is(err, ErrCooldownNotElapsed) ||
		errors.Is(err, ErrInsufficientFunds)
}
