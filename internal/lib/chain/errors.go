package chain

import (
	"errors"
)

var (
	ErrMintNotFound  = errors.New("mint not found")
	ErrNotStakeSlot  = errors.New("not a stake slot")
	ErrChainClosed   = errors.New("chain closed")
	ErrAgentRequired = errors.New("agent address required")
)
