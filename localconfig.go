package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/naoina/toml"

	"github.com/TxnLab/lstpool/internal/lib/chain"
	"github.com/TxnLab/lstpool/internal/lib/pool"
)

// Params is the layout of the params file. Anything left out keeps its default.
//
//	[pool]
//	min_deposit = 1000000000
//	[chain]
//	min_delegation = 1
type Params struct {
	Pool  pool.Params  `toml:"pool"`
	Chain chain.Params `toml:"chain"`
}

// LoadParams reads the params file at path over the defaults. An empty path returns the defaults.
func LoadParams(path string) (*Params, error) {
	params := &Params{
		Pool:  pool.DefaultParams(),
		Chain: chain.DefaultParams(),
	}
	if path == "" {
		return params, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err = toml.NewDecoder(file).Decode(params); err != nil {
		return nil, fmt.Errorf("error parsing params file %s: %w", path, err)
	}
	if params.Pool.SetupStake == 0 {
		return nil, fmt.Errorf("params file %s: setup_stake must be non-zero", path)
	}
	return params, nil
}

// PendingWithdrawal is a withdrawal started from this machine and not yet finalized.
type PendingWithdrawal struct {
	Owner        string    `json:"owner"`
	Nonce        uint64    `json:"nonce"`
	Slot         string    `json:"slot"`
	Amount       uint64    `json:"amount"`
	SharesBurned uint64    `json:"sharesBurned"`
	Started      time.Time `json:"started"`
}

// WithdrawalBook is the local record of pending withdrawals for one pool, plus the last
// nonce handed out per owner so a nonce is never reused while its slot may still exist.
type WithdrawalBook struct {
	PoolID      uint64              `json:"poolId"`
	LastNonces  map[string]uint64   `json:"lastNonces"`
	Withdrawals []PendingWithdrawal `json:"withdrawals"`
}

func WithdrawalsFilename(dataDir string, poolID uint64) string {
	return filepath.Join(filepath.Dir(filepath.Clean(dataDir)), fmt.Sprintf("withdrawals-%d.json", poolID))
}

// NextNonce reserves the next withdrawal nonce for owner.
func (b *WithdrawalBook) NextNonce(owner string) uint64 {
	if b.LastNonces == nil {
		b.LastNonces = map[string]uint64{}
	}
	b.LastNonces[owner]++
	return b.LastNonces[owner]
}

func (b *WithdrawalBook) Add(wd PendingWithdrawal) {
	b.Withdrawals = append(b.Withdrawals, wd)
}

// Remove drops the withdrawal of owner with nonce, reporting whether it was present.
func (b *WithdrawalBook) Remove(owner string, nonce uint64) bool {
	before := len(b.Withdrawals)
	b.Withdrawals = slices.DeleteFunc(b.Withdrawals, func(wd PendingWithdrawal) bool {
		return wd.Owner == owner && wd.Nonce == nonce
	})
	return len(b.Withdrawals) != before
}

// ForOwner returns the pending withdrawals of owner, or all of them if owner is empty.
func (b *WithdrawalBook) ForOwner(owner string) []PendingWithdrawal {
	if owner == "" {
		return slices.Clone(b.Withdrawals)
	}
	var found []PendingWithdrawal
	for _, wd := range b.Withdrawals {
		if wd.Owner == owner {
			found = append(found, wd)
		}
	}
	return found
}

// LoadWithdrawals reads the withdrawal book at path. A missing file is an empty book.
func LoadWithdrawals(path string, poolID uint64) (*WithdrawalBook, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &WithdrawalBook{PoolID: poolID, LastNonces: map[string]uint64{}}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var book WithdrawalBook
	if err = json.NewDecoder(file).Decode(&book); err != nil {
		return nil, fmt.Errorf("error reading withdrawals file %s: %w", path, err)
	}
	if book.PoolID != poolID {
		return nil, fmt.Errorf("withdrawals file %s belongs to pool %d, not %d", path, book.PoolID, poolID)
	}
	if book.LastNonces == nil {
		book.LastNonces = map[string]uint64{}
	}
	return &book, nil
}

func SaveWithdrawals(path string, book *WithdrawalBook) error {
	// Save into a temp file first and then replace the real file only if successfully written.
	if err := os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return fmt.Errorf("error making directory:%s, error:%w", filepath.Dir(path), err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(temp)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(book)
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error saving withdrawals: %w", err)
	}

	err = temp.Close()
	if err != nil {
		return err
	}

	err = os.Rename(temp.Name(), path)
	if err != nil {
		return err
	}
	slog.Debug("withdrawals saved", "file", path, "pending", len(book.Withdrawals))
	return nil
}
