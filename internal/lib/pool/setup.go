package pool

import (
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// setup writes the configuration record, creates the share mint if needed and hands off
// to PoolLedger.Setup for the slots and the initial shares.
func (p *Pool) setup(tx Txn, req *Request, ix Instruction, res *Result) error {
	_, err := tx.Record(p.Addrs.Config)
	switch {
	case err == nil:
		return ErrConfigAlreadyInitialized
	case !errors.Is(err, ErrConfigNotInitialized):
		return err
	}
	if ix.Agent.IsZero() || !tx.IsAgent(ix.Agent) {
		return fmt.Errorf("%w: %s", ErrInvalidAgent, ix.Agent)
	}
	if err = p.prepareMint(tx, req.Caller, req.Mint); err != nil {
		return err
	}

	cfg := &Config{
		Admin:       req.Caller,
		ShareMint:   req.Mint,
		PrimarySlot: p.Addrs.Primary,
		BufferSlot:  p.Addrs.Buffer,
		Agent:       ix.Agent,
	}
	data, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	if err = tx.CreateRecord(req.Caller, p.Addrs.Config, p.Addrs.Program, data); err != nil {
		return fmt.Errorf("writing config record: %w", err)
	}

	pl := NewPoolLedger(tx, cfg, p.Addrs, p.params)
	if res.Shares, err = pl.Setup(req.Caller); err != nil {
		return err
	}
	res.Amount = p.params.SetupStake
	res.Totals, err = pl.Totals()
	return err
}

// prepareMint creates the share mint with the pool authority as minter, or accepts an
// existing mint that the pool authority already controls and that has no supply.
func (p *Pool) prepareMint(tx Txn, payer, mint types.Address) error {
	authority, exists, err := tx.MintAuthority(mint)
	if err != nil {
		return err
	}
	if !exists {
		if err = tx.InitMint(payer, mint, p.Addrs.Authority, ShareDecimals); err != nil {
			return fmt.Errorf("creating share mint: %w", err)
		}
		return nil
	}
	if authority != p.Addrs.Authority {
		return fmt.Errorf("%w: share mint %s is controlled by %s", ErrUnauthorized, mint, authority)
	}
	supply, err := tx.TotalSupply(mint)
	if err != nil {
		return err
	}
	if supply != 0 {
		return fmt.Errorf("%w: share mint %s already has supply %d", ErrInvalidConfig, mint, supply)
	}
	return nil
}
