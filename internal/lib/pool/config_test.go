package pool

import (
	"bytes"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLayout(t *testing.T) {
	addrs := DeriveAddresses(types.Address{9})
	cfg := &Config{
		Admin:       types.Address{1},
		ShareMint:   types.Address{2},
		PrimarySlot: addrs.Primary,
		BufferSlot:  addrs.Buffer,
		Agent:       types.Address{5},
	}
	data, err := cfg.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 160)
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, byte(2), data[32])
	assert.True(t, bytes.Equal(addrs.Primary[:], data[64:96]))
	assert.True(t, bytes.Equal(addrs.Buffer[:], data[96:128]))
	assert.Equal(t, byte(5), data[128])

	var decoded Config
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, *cfg, decoded)
	assert.NoError(t, decoded.Validate(addrs))

	assert.ErrorIs(t, decoded.UnmarshalBinary(data[:159]), ErrInvalidConfig)
	assert.ErrorIs(t, decoded.UnmarshalBinary(append(data, 0)), ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	addrs := DeriveAddresses(types.Address{9})
	good := Config{ShareMint: types.Address{2}, PrimarySlot: addrs.Primary, BufferSlot: addrs.Buffer, Agent: types.Address{5}}
	require.NoError(t, good.Validate(addrs))

	swapped := good
	swapped.PrimarySlot, swapped.BufferSlot = good.BufferSlot, good.PrimarySlot
	assert.ErrorIs(t, swapped.Validate(addrs), ErrInvalidConfig)

	otherPool := DeriveAddresses(types.Address{10})
	assert.ErrorIs(t, good.Validate(otherPool), ErrInvalidConfig)

	noAgent := good
	noAgent.Agent = types.ZeroAddress
	assert.ErrorIs(t, noAgent.Validate(addrs), ErrInvalidConfig)
}

func TestDerivedAddresses(t *testing.T) {
	program := types.Address{7}
	addrs := DeriveAddresses(program)
	assert.Equal(t, addrs.Config, addrs.Authority)
	assert.NotEqual(t, addrs.Primary, addrs.Buffer)
	assert.Equal(t, addrs, DeriveAddresses(program))
	assert.NotEqual(t, addrs.Primary, DeriveAddresses(types.Address{8}).Primary)

	owner := types.Address{0x42}
	first := WithdrawalSlotAddress(program, owner, 1)
	assert.Equal(t, first, WithdrawalSlotAddress(program, owner, 1))
	assert.NotEqual(t, first, WithdrawalSlotAddress(program, owner, 2))
	assert.NotEqual(t, first, WithdrawalSlotAddress(program, types.Address{0x43}, 1))
	assert.NotEqual(t, first, WithdrawalSlotAddress(types.Address{8}, owner, 1))
}
