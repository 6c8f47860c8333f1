package chain

import (
	"encoding/binary"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/TxnLab/lstpool/internal/lib/pool"
)

// key prefixes
const (
	prefixAccount = "a/"
	prefixMint    = "m/"
	prefixToken   = "t/"
	prefixAgent   = "v/"
	prefixLease   = "l/"
)

var epochKey = []byte("epoch")

func accountKey(addr types.Address) []byte {
	return append([]byte(prefixAccount), addr[:]...)
}

func mintKey(mint types.Address) []byte {
	return append([]byte(prefixMint), mint[:]...)
}

func tokenKey(mint, holder types.Address) []byte {
	key := append([]byte(prefixToken), mint[:]...)
	return append(key, holder[:]...)
}

func agentKey(agent types.Address) []byte {
	return append([]byte(prefixAgent), agent[:]...)
}

func leaseKey(caller types.Address, lease [16]byte) []byte {
	key := append([]byte(prefixLease), caller[:]...)
	return append(key, lease[:]...)
}

type accountKind uint8

const (
	kindSystem accountKind = iota
	kindStake
	kindRecord
)

type account struct {
	Balance uint64      `codec:"bal"`
	Kind    accountKind `codec:"kind"`

	// records
	Owner types.Address `codec:"own"`
	Data  []byte        `codec:"data"`

	// stake slots
	Authority     types.Address `codec:"auth"`
	Delegated     bool          `codec:"dlg"`
	Agent         types.Address `codec:"agent"`
	ActivatedAt   uint64        `codec:"act"`
	Deactivated   bool          `codec:"deact"`
	DeactivatedAt uint64        `codec:"deactat"`
}

// status is the stake status at epoch. Accounts that aren't stake slots report none.
func (a *account) status(epoch uint64) pool.StakeStatus {
	switch {
	case a == nil || a.Kind != kindStake:
		return pool.StatusNone
	case !a.Delegated:
		return pool.StatusUninitialized
	case a.Deactivated && epoch > a.DeactivatedAt:
		return pool.StatusInactive
	case a.Deactivated:
		return pool.StatusDeactivating
	case epoch > a.ActivatedAt:
		return pool.StatusActive
	}
	return pool.StatusActivating
}

func (a *account) undelegate() {
	a.Delegated = false
	a.Agent = types.ZeroAddress
	a.ActivatedAt = 0
	a.Deactivated = false
	a.DeactivatedAt = 0
}

func (a *account) slotInfo(addr types.Address, epoch uint64) pool.SlotInfo {
	info := pool.SlotInfo{Address: addr, Status: a.status(epoch)}
	if info.Status == pool.StatusNone {
		return info
	}
	info.Balance = a.Balance
	info.Agent = a.Agent
	info.Authority = a.Authority
	return info
}

type mintState struct {
	Authority types.Address `codec:"auth"`
	Decimals  uint8         `codec:"dec"`
	Supply    uint64        `codec:"supply"`
	Reserve   uint64        `codec:"rsv"`
}

func encode(v interface{}) []byte {
	return msgpack.Encode(v)
}

func decode(data []byte, v interface{}) error {
	return msgpack.Decode(data, v)
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint64(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
