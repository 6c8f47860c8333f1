// Package chain is a local simulation of the staking ledger and token service a pool
// runs against: plain balances, stake slots with epoch based warm-up and cool-down,
// rent reserves, and fungible token mints. State lives in LevelDB and every
// transaction commits as one batch.
package chain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/TxnLab/lstpool/internal/lib/misc"
	"github.com/TxnLab/lstpool/internal/lib/pool"
)

type Chain struct {
	logger *slog.Logger
	params Params

	// mu serializes transactions
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates) the ledger stored in dir.
func Open(dir string, params Params, logger *slog.Logger) (*Chain, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ledger at %s: %w", dir, err)
	}
	misc.Infof(logger, "ledger opened at %s", dir)
	return &Chain{logger: logger, params: params, db: db}, nil
}

// OpenMemory returns a ledger that lives only in memory.
func OpenMemory(params Params, logger *slog.Logger) (*Chain, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Chain{logger: logger, params: params, db: db}, nil
}

func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Chain) Params() Params {
	return c.params
}

// Update runs fn as one transaction, committing its writes only if fn returns nil.
func (c *Chain) Update(ctx context.Context, fn func(tx *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrChainClosed
	}
	tx, err := c.begin()
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if tx.err != nil {
		return fmt.Errorf("txn %s: %w", tx.id, tx.err)
	}
	return tx.commit()
}

// Atomic implements pool.Chain.
func (c *Chain) Atomic(ctx context.Context, fn func(tx pool.Txn) error) error {
	return c.Update(ctx, func(tx *Txn) error {
		return fn(tx)
	})
}

// Fund credits amount to addr out of thin air.
func (c *Chain) Fund(ctx context.Context, addr types.Address, amount uint64) error {
	return c.Update(ctx, func(tx *Txn) error {
		return tx.credit(addr, amount)
	})
}

// RegisterAgent makes agent eligible for delegation.
func (c *Chain) RegisterAgent(ctx context.Context, agent types.Address) error {
	if agent.IsZero() {
		return ErrAgentRequired
	}
	return c.Update(ctx, func(tx *Txn) error {
		tx.put(agentKey(agent), []byte{1})
		return nil
	})
}

func (c *Chain) Epoch(ctx context.Context) (uint64, error) {
	var epoch uint64
	err := c.Update(ctx, func(tx *Txn) error {
		epoch = tx.epoch
		return nil
	})
	return epoch, err
}

func (c *Chain) Balance(ctx context.Context, addr types.Address) (uint64, error) {
	var balance uint64
	err := c.Update(ctx, func(tx *Txn) error {
		var err error
		balance, err = tx.Balance(addr)
		return err
	})
	return balance, err
}

// AccrueReward adds amount to a delegated stake slot, as if earned by its agent.
func (c *Chain) AccrueReward(ctx context.Context, slot types.Address, amount uint64) error {
	return c.Update(ctx, func(tx *Txn) error {
		acct, err := tx.stakeSlot(slot)
		if err != nil {
			return err
		}
		if !acct.Delegated {
			return fmt.Errorf("%w: %s is not delegated", pool.ErrSlotNotActive, slot)
		}
		if acct.Balance+amount < acct.Balance {
			return pool.ErrArithmeticOverflow
		}
		acct.Balance += amount
		tx.putAccount(slot, acct)
		return nil
	})
}

// AdvanceEpoch closes the current epoch. Every slot that was active or deactivating
// during it earns rewardBPS basis points on its stake above the rent reserve.
// Returns the new epoch and the total rewards paid.
func (c *Chain) AdvanceEpoch(ctx context.Context, rewardBPS uint64) (uint64, uint64, error) {
	var newEpoch, rewarded uint64
	err := c.Update(ctx, func(tx *Txn) error {
		if rewardBPS > 0 {
			rent := c.params.MinimumBalance(pool.StakeSlotSpace)
			slots, err := tx.accounts()
			if err != nil {
				return err
			}
			for addr, acct := range slots {
				status := acct.status(tx.epoch)
				if status != pool.StatusActive && status != pool.StatusDeactivating {
					continue
				}
				if acct.Balance <= rent {
					continue
				}
				reward := new(uint256.Int).Mul(uint256.NewInt(acct.Balance-rent), uint256.NewInt(rewardBPS))
				reward.Div(reward, uint256.NewInt(10_000))
				if !reward.IsUint64() || acct.Balance+reward.Uint64() < acct.Balance {
					return fmt.Errorf("reward for %s: %w", addr, pool.ErrArithmeticOverflow)
				}
				acct.Balance += reward.Uint64()
				rewarded += reward.Uint64()
				tx.putAccount(addr, acct)
			}
		}
		tx.epoch++
		tx.put(epochKey, encodeUint64(tx.epoch))
		newEpoch = tx.epoch
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	misc.Infof(c.logger, "epoch advanced to %d, rewards:%s", newEpoch, misc.FormattedAmount(rewarded))
	return newEpoch, rewarded, nil
}

// Slots lists every stake slot.
func (c *Chain) Slots(ctx context.Context) ([]pool.SlotInfo, error) {
	var infos []pool.SlotInfo
	err := c.Update(ctx, func(tx *Txn) error {
		slots, err := tx.accounts()
		if err != nil {
			return err
		}
		for addr, acct := range slots {
			infos = append(infos, acct.slotInfo(addr, tx.epoch))
		}
		return nil
	})
	slices.SortFunc(infos, func(a, b pool.SlotInfo) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return infos, err
}

func (c *Chain) begin() (*Txn, error) {
	tx := &Txn{
		id:     uuid.New().String(),
		chain:  c,
		writes: map[string][]byte{},
	}
	data, err := tx.get(epochKey)
	if err != nil {
		return nil, err
	}
	tx.epoch = decodeUint64(data)
	return tx, nil
}

// stakeAccounts reads every committed stake slot.
func (c *Chain) stakeAccounts() (map[types.Address]*account, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte(prefixAccount)), nil)
	defer iter.Release()
	slots := map[types.Address]*account{}
	for iter.Next() {
		acct := &account{}
		if err := decode(iter.Value(), acct); err != nil {
			return nil, err
		}
		if acct.Kind != kindStake {
			continue
		}
		var addr types.Address
		copy(addr[:], iter.Key()[len(prefixAccount):])
		slots[addr] = acct
	}
	return slots, iter.Error()
}
