package pool

import (
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// ConfigRecordSize is the byte size of an encoded Config.
const ConfigRecordSize = 5 * len(types.ZeroAddress)

// Config is the immutable record written once at setup and read at the start of
// every operation.
type Config struct {
	Admin       types.Address
	ShareMint   types.Address
	PrimarySlot types.Address
	BufferSlot  types.Address
	Agent       types.Address
}

// MarshalBinary encodes the record as five consecutive 32-byte identities.
func (c *Config) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, ConfigRecordSize)
	for _, addr := range c.fields() {
		data = append(data, addr[:]...)
	}
	return data, nil
}

func (c *Config) UnmarshalBinary(data []byte) error {
	if len(data) != ConfigRecordSize {
		return fmt.Errorf("%w: record is %d bytes, expected %d", ErrInvalidConfig, len(data), ConfigRecordSize)
	}
	// offsets: 0 admin, 32 share mint, 64 primary, 96 buffer, 128 agent
	for i, addr := range c.fields() {
		copy(addr[:], data[i*32:(i+1)*32])
	}
	return nil
}

func (c *Config) fields() []*types.Address {
	return []*types.Address{&c.Admin, &c.ShareMint, &c.PrimarySlot, &c.BufferSlot, &c.Agent}
}

// Validate checks that the record refers to the slots derived for addrs.
func (c *Config) Validate(addrs Addresses) error {
	if c.PrimarySlot != addrs.Primary || c.BufferSlot != addrs.Buffer {
		return fmt.Errorf("%w: slot identities don't match pool %s", ErrInvalidConfig, addrs.Program)
	}
	if c.ShareMint.IsZero() || c.Agent.IsZero() {
		return fmt.Errorf("%w: empty share mint or agent", ErrInvalidConfig)
	}
	return nil
}
