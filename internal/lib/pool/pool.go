// Package pool implements a liquid staking pool: deposits of the base asset are
// delegated to a single validating agent and represented by a share token whose
// redeemable value grows as rewards accrue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/TxnLab/lstpool/internal/lib/misc"
)

// Pool processes requests for one pool instance against a shared Chain. It keeps no
// state between calls; everything is re-read from the chain inside each transaction.
type Pool struct {
	Logger *slog.Logger
	Addrs  Addresses

	chain  Chain
	params Params
}

func New(programID types.Address, chain Chain, params Params, logger *slog.Logger) *Pool {
	p := &Pool{
		Logger: logger,
		Addrs:  DeriveAddresses(programID),
		chain:  chain,
		params: params,
	}
	misc.Infof(logger, "pool client initialized, program:%s, primary:%s, buffer:%s", programID, p.Addrs.Primary, p.Addrs.Buffer)
	return p
}

func (p *Pool) Params() Params {
	return p.params
}

// Result describes a committed operation.
type Result struct {
	Kind Kind
	TxID string
	// Shares minted (setup, deposit) or burned (initiate withdrawal)
	Shares uint64
	// Amount of base moved by the operation
	Amount uint64
	// Slot is the withdrawal slot for withdrawal operations
	Slot   types.Address
	Totals Totals
}

// Process verifies the request's signatures, checks its authorizers and applies the
// instruction as a single atomic transaction.
func (p *Pool) Process(ctx context.Context, req *Request) (*Result, error) {
	ix, err := DecodeInstruction(req.Data)
	if err != nil {
		return nil, err
	}
	res, err := p.process(ctx, req, ix)
	if err != nil {
		promOperations.WithLabelValues(ix.Kind.String(), "error").Inc()
		misc.Debugf(p.Logger, "%s rejected, caller:%s, err:%v", ix.Kind, req.Caller, err)
		return nil, fmt.Errorf("%s: %w", ix.Kind, err)
	}
	promOperations.WithLabelValues(ix.Kind.String(), "ok").Inc()
	recordTotals(res.Totals)
	misc.Infof(p.Logger, "%s committed, txid:%s, caller:%s, shares:%d, amount:%d, rate:%s",
		ix.Kind, res.TxID, req.Caller, res.Shares, res.Amount, res.Totals.Rate())
	return res, nil
}

func (p *Pool) process(ctx context.Context, req *Request, ix Instruction) (*Result, error) {
	signers, err := req.Signers()
	if err != nil {
		return nil, err
	}
	var required []types.Address
	switch ix.Kind {
	case KindSetup:
		required = []types.Address{req.Caller, req.Mint}
	case KindDeposit, KindInitiateWithdrawal, KindFinalizeWithdrawal:
		required = []types.Address{req.Caller}
	}
	for _, addr := range required {
		if !signers.Contains(addr) {
			return nil, fmt.Errorf("%w: missing signature from %s", ErrUnauthorized, addr)
		}
	}

	var res *Result
	err = p.chain.Atomic(ctx, func(tx Txn) error {
		res = &Result{Kind: ix.Kind, TxID: tx.ID()}
		// cranks carry no authority, so replaying one is the same as sending it again
		if len(required) > 0 {
			if err := tx.UseLease(req.Caller, req.Lease); err != nil {
				return err
			}
		}
		if ix.Kind == KindSetup {
			return p.setup(tx, req, ix, res)
		}
		pl, err := p.load(tx)
		if err != nil {
			return err
		}
		before, err := pl.Totals()
		if err != nil {
			return err
		}
		switch ix.Kind {
		case KindActivateBuffer:
			res.Amount, err = pl.ActivateBuffer()
		case KindMergeBuffer:
			res.Amount, err = pl.MergeBuffer()
		case KindDeposit:
			res.Amount = ix.Amount
			res.Shares, err = pl.Deposit(req.Caller, ix.Amount)
		case KindInitiateWithdrawal:
			var wd *Withdrawal
			wd, err = pl.InitiateWithdrawal(req.Caller, ix.Amount, ix.Nonce)
			if err == nil {
				res.Amount, res.Shares, res.Slot = wd.Amount, wd.SharesBurned, wd.Slot
			}
		case KindFinalizeWithdrawal:
			res.Slot = WithdrawalSlotAddress(p.Addrs.Program, req.Caller, ix.Nonce)
			res.Amount, err = pl.FinalizeWithdrawal(req.Caller, ix.Nonce)
		}
		if err != nil {
			return err
		}
		if res.Totals, err = pl.Totals(); err != nil {
			return err
		}
		return checkRate(ix.Kind, before, res.Totals)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// checkRate rejects any operation other than a withdrawal that lowers the exchange rate.
func checkRate(kind Kind, before, after Totals) error {
	if kind == KindInitiateWithdrawal || before.Shares == 0 {
		return nil
	}
	if after.Rate().Less(before.Rate()) {
		return fmt.Errorf("%w: exchange rate fell from %s to %s", ErrInvariantViolated, before.Rate(), after.Rate())
	}
	return nil
}

// load reads and validates the configuration record.
func (p *Pool) load(tx Txn) (*PoolLedger, error) {
	data, err := tx.Record(p.Addrs.Config)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err = cfg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if err = cfg.Validate(p.Addrs); err != nil {
		return nil, err
	}
	return NewPoolLedger(tx, cfg, p.Addrs, p.params), nil
}

// State is a read-only snapshot of the pool.
type State struct {
	Config  Config
	Primary SlotInfo
	Buffer  SlotInfo
	Totals  Totals
	// WithdrawalFloor is the smallest withdrawal currently accepted
	WithdrawalFloor uint64
}

func (p *Pool) State(ctx context.Context) (*State, error) {
	var state *State
	err := p.chain.Atomic(ctx, func(tx Txn) error {
		pl, err := p.load(tx)
		if err != nil {
			return err
		}
		state = &State{Config: *pl.Config(), WithdrawalFloor: pl.WithdrawalFloor()}
		if state.Primary, err = tx.QueryState(p.Addrs.Primary); err != nil {
			return err
		}
		if state.Buffer, err = tx.QueryState(p.Addrs.Buffer); err != nil {
			return err
		}
		state.Totals, err = pl.Totals()
		return err
	})
	if err != nil {
		return nil, err
	}
	recordTotals(state.Totals)
	return state, nil
}

// Holding is a holder's share balance and what it currently redeems for.
type Holding struct {
	Shares     uint64
	Redeemable uint64
}

func (p *Pool) Holding(ctx context.Context, holder types.Address) (Holding, error) {
	var holding Holding
	err := p.chain.Atomic(ctx, func(tx Txn) error {
		pl, err := p.load(tx)
		if err != nil {
			return err
		}
		totals, err := pl.Totals()
		if err != nil {
			return err
		}
		if holding.Shares, err = tx.BalanceOf(pl.Config().ShareMint, holder); err != nil {
			return err
		}
		holding.Redeemable, err = RedeemableValue(holding.Shares, totals.Shares, totals.Managed)
		return err
	})
	return holding, err
}

// Withdrawal reports the ledger state of owner's withdrawal slot for nonce.
func (p *Pool) Withdrawal(ctx context.Context, owner types.Address, nonce uint64) (SlotInfo, error) {
	var info SlotInfo
	err := p.chain.Atomic(ctx, func(tx Txn) error {
		var err error
		info, err = tx.QueryState(WithdrawalSlotAddress(p.Addrs.Program, owner, nonce))
		return err
	})
	return info, err
}

// IsSetup reports whether the configuration record exists.
func (p *Pool) IsSetup(ctx context.Context) (bool, error) {
	err := p.chain.Atomic(ctx, func(tx Txn) error {
		_, err := tx.Record(p.Addrs.Config)
		return err
	})
	if errors.Is(err, ErrConfigNotInitialized) {
		return false, nil
	}
	return err == nil, err
}
