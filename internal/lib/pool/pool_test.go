package pool_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TxnLab/lstpool/internal/lib/chain"
	"github.com/TxnLab/lstpool/internal/lib/pool"
)

type harness struct {
	ctx   context.Context
	chain *chain.Chain
	pool  *pool.Pool
	rent  uint64

	initializer crypto.Account
	mint        crypto.Account
	agent       types.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := chain.OpenMemory(chain.DefaultParams(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	h := &harness{
		ctx:         ctx,
		chain:       c,
		pool:        pool.New(crypto.GetApplicationAddress(1234), c, pool.DefaultParams(), logger),
		rent:        c.Params().MinimumBalance(pool.StakeSlotSpace),
		initializer: crypto.GenerateAccount(),
		mint:        crypto.GenerateAccount(),
		agent:       crypto.GenerateAccount().Address,
	}
	require.NoError(t, c.RegisterAgent(ctx, h.agent))
	require.NoError(t, c.Fund(ctx, h.initializer.Address, 10*pool.BaseUnitsPerCoin))
	return h
}

func (h *harness) setup(t *testing.T) *pool.Result {
	t.Helper()
	req := pool.NewRequest(pool.Instruction{Kind: pool.KindSetup, Agent: h.agent}, h.initializer.Address)
	req.Mint = h.mint.Address
	req.Sign(h.initializer.PrivateKey)
	req.Sign(h.mint.PrivateKey)
	res, err := h.pool.Process(h.ctx, req)
	require.NoError(t, err)
	return res
}

func (h *harness) user(t *testing.T, funds uint64) crypto.Account {
	t.Helper()
	acct := crypto.GenerateAccount()
	require.NoError(t, h.chain.Fund(h.ctx, acct.Address, funds))
	return acct
}

func (h *harness) send(caller crypto.Account, ix pool.Instruction) (*pool.Result, error) {
	req := pool.NewRequest(ix, caller.Address)
	req.Sign(caller.PrivateKey)
	return h.pool.Process(h.ctx, req)
}

func (h *harness) crank(kind pool.Kind) (*pool.Result, error) {
	return h.pool.Process(h.ctx, pool.NewRequest(pool.Instruction{Kind: kind}, types.ZeroAddress))
}

func (h *harness) state(t *testing.T) *pool.State {
	t.Helper()
	state, err := h.pool.State(h.ctx)
	require.NoError(t, err)
	return state
}

func (h *harness) advance(t *testing.T) {
	t.Helper()
	_, _, err := h.chain.AdvanceEpoch(h.ctx, 0)
	require.NoError(t, err)
}

func TestPoolLifecycle(t *testing.T) {
	h := newHarness(t)
	res := h.setup(t)
	assert.Equal(t, uint64(pool.BaseUnitsPerCoin), res.Shares)

	state := h.state(t)
	assert.Equal(t, h.agent, state.Config.Agent)
	assert.Equal(t, h.mint.Address, state.Config.ShareMint)
	assert.Equal(t, h.initializer.Address, state.Config.Admin)
	assert.Equal(t, pool.StatusActivating, state.Primary.Status)
	assert.Equal(t, pool.BaseUnitsPerCoin+h.rent, state.Primary.Balance)
	assert.Equal(t, pool.StatusUninitialized, state.Buffer.Status)
	assert.Equal(t, h.rent, state.Buffer.Balance)
	assert.Equal(t, pool.Totals{Shares: pool.BaseUnitsPerCoin, Managed: pool.BaseUnitsPerCoin + 2*h.rent}, state.Totals)

	alice := h.user(t, 100*pool.BaseUnitsPerCoin)

	_, err := h.send(alice, pool.Instruction{Kind: pool.KindDeposit, Amount: 0})
	assert.ErrorIs(t, err, pool.ErrInvalidAmount)

	expected, err := pool.SharesForDeposit(10*pool.BaseUnitsPerCoin, state.Totals.Shares, state.Totals.Managed)
	require.NoError(t, err)
	res, err = h.send(alice, pool.Instruction{Kind: pool.KindDeposit, Amount: 10 * pool.BaseUnitsPerCoin})
	require.NoError(t, err)
	assert.Equal(t, expected, res.Shares)
	assert.Equal(t, state.Totals.Managed+10*pool.BaseUnitsPerCoin, res.Totals.Managed)

	_, err = h.crank(pool.KindMergeBuffer)
	assert.ErrorIs(t, err, pool.ErrSlotNotActive)

	res, err = h.crank(pool.KindActivateBuffer)
	require.NoError(t, err)
	assert.Equal(t, 10*pool.BaseUnitsPerCoin+h.rent, res.Amount)
	assert.Equal(t, pool.StatusActivating, h.state(t).Buffer.Status)

	_, err = h.crank(pool.KindMergeBuffer)
	assert.ErrorIs(t, err, pool.ErrSlotNotActive)
	assert.True(t, pool.IsCrankPending(err))

	h.advance(t)
	beforeMerge := h.state(t)
	assert.Equal(t, pool.StatusActive, beforeMerge.Buffer.Status)
	_, err = h.crank(pool.KindMergeBuffer)
	require.NoError(t, err)
	afterMerge := h.state(t)
	assert.Equal(t, beforeMerge.Totals, afterMerge.Totals)
	assert.Equal(t, pool.StatusUninitialized, afterMerge.Buffer.Status)
	assert.Zero(t, afterMerge.Buffer.Balance)
	assert.Equal(t, beforeMerge.Totals.Managed, afterMerge.Primary.Balance)

	// rewards raise the rate
	require.NoError(t, h.chain.AccrueReward(h.ctx, h.pool.Addrs.Primary, pool.BaseUnitsPerCoin))
	rewarded := h.state(t)
	assert.True(t, afterMerge.Totals.Rate().Less(rewarded.Totals.Rate()))

	holding, err := h.pool.Holding(h.ctx, alice.Address)
	require.NoError(t, err)
	assert.Greater(t, holding.Redeemable, 10*uint64(pool.BaseUnitsPerCoin)-2)

	// withdraw
	amount := 2 * uint64(pool.BaseUnitsPerCoin)
	// priced after the split, so the new slot's reserve is part of the total
	burn, err := pool.SharesToBurn(amount, rewarded.Totals.Shares, rewarded.Totals.Managed+h.rent)
	require.NoError(t, err)
	res, err = h.send(alice, pool.Instruction{Kind: pool.KindInitiateWithdrawal, Amount: amount, Nonce: 1})
	require.NoError(t, err)
	assert.Equal(t, burn, res.Shares)
	assert.Equal(t, pool.WithdrawalSlotAddress(h.pool.Addrs.Program, alice.Address, 1), res.Slot)
	assert.Equal(t, pool.Totals{Shares: rewarded.Totals.Shares - burn, Managed: rewarded.Totals.Managed - amount}, res.Totals)

	after, err := h.pool.Holding(h.ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, holding.Shares-burn, after.Shares)

	slot, err := h.pool.Withdrawal(h.ctx, alice.Address, 1)
	require.NoError(t, err)
	assert.Equal(t, pool.StatusDeactivating, slot.Status)
	assert.Equal(t, amount+h.rent, slot.Balance)

	_, err = h.send(alice, pool.Instruction{Kind: pool.KindInitiateWithdrawal, Amount: amount, Nonce: 1})
	assert.ErrorIs(t, err, pool.ErrSlotAlreadyExists)

	_, err = h.send(alice, pool.Instruction{Kind: pool.KindFinalizeWithdrawal, Nonce: 1})
	assert.ErrorIs(t, err, pool.ErrCooldownNotElapsed)

	h.advance(t)

	// someone else can't finalize on alice's behalf
	mallory := h.user(t, pool.BaseUnitsPerCoin)
	req := pool.NewRequest(pool.Instruction{Kind: pool.KindFinalizeWithdrawal, Nonce: 1}, alice.Address)
	req.Sign(mallory.PrivateKey)
	_, err = h.pool.Process(h.ctx, req)
	assert.ErrorIs(t, err, pool.ErrUnauthorized)

	res, err = h.send(alice, pool.Instruction{Kind: pool.KindFinalizeWithdrawal, Nonce: 1})
	require.NoError(t, err)
	assert.Equal(t, amount+h.rent, res.Amount)

	balance, err := h.chain.Balance(h.ctx, alice.Address)
	require.NoError(t, err)
	assert.Equal(t, 100*uint64(pool.BaseUnitsPerCoin)-10*pool.BaseUnitsPerCoin+amount, balance)

	_, err = h.send(alice, pool.Instruction{Kind: pool.KindFinalizeWithdrawal, Nonce: 1})
	assert.ErrorIs(t, err, pool.ErrSlotNotFound)
}

func TestPoolSetupRejected(t *testing.T) {
	h := newHarness(t)

	alice := h.user(t, 10*pool.BaseUnitsPerCoin)
	_, err := h.send(alice, pool.Instruction{Kind: pool.KindDeposit, Amount: pool.BaseUnitsPerCoin})
	assert.ErrorIs(t, err, pool.ErrConfigNotInitialized)
	_, err = h.crank(pool.KindActivateBuffer)
	assert.ErrorIs(t, err, pool.ErrConfigNotInitialized)

	isSetup, err := h.pool.IsSetup(h.ctx)
	require.NoError(t, err)
	assert.False(t, isSetup)

	// mint must sign too
	req := pool.NewRequest(pool.Instruction{Kind: pool.KindSetup, Agent: h.agent}, h.initializer.Address)
	req.Mint = h.mint.Address
	req.Sign(h.initializer.PrivateKey)
	_, err = h.pool.Process(h.ctx, req)
	assert.ErrorIs(t, err, pool.ErrUnauthorized)

	// unknown agent
	req = pool.NewRequest(pool.Instruction{Kind: pool.KindSetup, Agent: types.Address{0x99}}, h.initializer.Address)
	req.Mint = h.mint.Address
	req.Sign(h.initializer.PrivateKey)
	req.Sign(h.mint.PrivateKey)
	_, err = h.pool.Process(h.ctx, req)
	assert.ErrorIs(t, err, pool.ErrInvalidAgent)

	// malformed instruction
	_, err = h.pool.Process(h.ctx, &pool.Request{Data: []byte{3, 1}})
	assert.ErrorIs(t, err, pool.ErrInvalidInstruction)

	h.setup(t)
	isSetup, err = h.pool.IsSetup(h.ctx)
	require.NoError(t, err)
	assert.True(t, isSetup)

	req = pool.NewRequest(pool.Instruction{Kind: pool.KindSetup, Agent: h.agent}, h.initializer.Address)
	req.Mint = h.mint.Address
	req.Sign(h.initializer.PrivateKey)
	req.Sign(h.mint.PrivateKey)
	_, err = h.pool.Process(h.ctx, req)
	assert.ErrorIs(t, err, pool.ErrConfigAlreadyInitialized)
}

func TestPoolFailedOperationLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.setup(t)
	bob := h.user(t, 100*pool.BaseUnitsPerCoin)

	_, err := h.send(bob, pool.Instruction{Kind: pool.KindDeposit, Amount: 50 * pool.BaseUnitsPerCoin})
	require.NoError(t, err)
	before := h.state(t)
	balance, err := h.chain.Balance(h.ctx, bob.Address)
	require.NoError(t, err)

	// the deposit is still in the buffer so the primary slot can't cover this split; the
	// slot allocation paid by bob earlier in the same operation must be undone
	_, err = h.send(bob, pool.Instruction{Kind: pool.KindInitiateWithdrawal, Amount: 20 * pool.BaseUnitsPerCoin, Nonce: 1})
	assert.ErrorIs(t, err, pool.ErrInsufficientFunds)

	after := h.state(t)
	assert.Equal(t, before.Totals, after.Totals)
	balanceAfter, err := h.chain.Balance(h.ctx, bob.Address)
	require.NoError(t, err)
	assert.Equal(t, balance, balanceAfter)
	slot, err := h.pool.Withdrawal(h.ctx, bob.Address, 1)
	require.NoError(t, err)
	assert.False(t, slot.Exists())
}

func TestPoolConcurrentDeposits(t *testing.T) {
	h := newHarness(t)
	h.setup(t)
	require.NoError(t, h.chain.AccrueReward(h.ctx, h.pool.Addrs.Primary, 123_456_789))

	const numUsers, perUser = 8, 5
	users := make([]crypto.Account, numUsers)
	for i := range users {
		users[i] = h.user(t, 100*pool.BaseUnitsPerCoin)
	}

	var wg sync.WaitGroup
	errs := make(chan error, numUsers*perUser)
	for _, u := range users {
		wg.Add(1)
		go func(u crypto.Account) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				_, err := h.send(u, pool.Instruction{Kind: pool.KindDeposit, Amount: pool.BaseUnitsPerCoin + uint64(i)*7_777})
				errs <- err
			}
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state := h.state(t)
	var shares, claims uint64
	for _, acct := range append(users, h.initializer) {
		holding, err := h.pool.Holding(h.ctx, acct.Address)
		require.NoError(t, err)
		shares += holding.Shares
		claims += holding.Redeemable
	}
	assert.Equal(t, state.Totals.Shares, shares)
	assert.LessOrEqual(t, claims, state.Totals.Managed)
}

func TestPoolConcurrentWithdrawalsSameNonce(t *testing.T) {
	h := newHarness(t)
	h.setup(t)
	carol := h.user(t, 100*pool.BaseUnitsPerCoin)
	_, err := h.send(carol, pool.Instruction{Kind: pool.KindDeposit, Amount: 40 * pool.BaseUnitsPerCoin})
	require.NoError(t, err)
	_, err = h.crank(pool.KindActivateBuffer)
	require.NoError(t, err)
	h.advance(t)
	_, err = h.crank(pool.KindMergeBuffer)
	require.NoError(t, err)
	before, err := h.pool.Holding(h.ctx, carol.Address)
	require.NoError(t, err)

	const racers = 4
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, racers)
		res   = make(chan *pool.Result, racers)
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r, err := h.send(carol, pool.Instruction{Kind: pool.KindInitiateWithdrawal, Amount: 3 * pool.BaseUnitsPerCoin, Nonce: 9})
			if err != nil {
				errs <- err
				return
			}
			res <- r
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	close(res)

	require.Len(t, res, 1)
	require.Len(t, errs, racers-1)
	for err := range errs {
		assert.ErrorIs(t, err, pool.ErrSlotAlreadyExists)
	}
	won := <-res

	after, err := h.pool.Holding(h.ctx, carol.Address)
	require.NoError(t, err)
	assert.Equal(t, before.Shares-won.Shares, after.Shares, "shares burned once")
	slot, err := h.pool.Withdrawal(h.ctx, carol.Address, 9)
	require.NoError(t, err)
	assert.Equal(t, 3*pool.BaseUnitsPerCoin+h.rent, slot.Balance)
}

func TestPoolReplayedRequestRejected(t *testing.T) {
	h := newHarness(t)
	h.setup(t)
	dave := h.user(t, 100*pool.BaseUnitsPerCoin)

	req := pool.NewRequest(pool.Instruction{Kind: pool.KindDeposit, Amount: 5 * pool.BaseUnitsPerCoin}, dave.Address)
	req.Sign(dave.PrivateKey)
	_, err := h.pool.Process(h.ctx, req)
	require.NoError(t, err)
	before := h.state(t)
	balance, err := h.chain.Balance(h.ctx, dave.Address)
	require.NoError(t, err)

	// anyone holding the signed request can resubmit it
	_, err = h.pool.Process(h.ctx, req)
	assert.ErrorIs(t, err, pool.ErrRequestReplayed)
	assert.Equal(t, before.Totals, h.state(t).Totals)
	after, err := h.chain.Balance(h.ctx, dave.Address)
	require.NoError(t, err)
	assert.Equal(t, balance, after)

	// a rejected request doesn't use up its lease
	big := pool.NewRequest(pool.Instruction{Kind: pool.KindDeposit, Amount: 500 * pool.BaseUnitsPerCoin}, dave.Address)
	big.Sign(dave.PrivateKey)
	_, err = h.pool.Process(h.ctx, big)
	assert.ErrorIs(t, err, pool.ErrInsufficientFunds)
	require.NoError(t, h.chain.Fund(h.ctx, dave.Address, 500*pool.BaseUnitsPerCoin))
	_, err = h.pool.Process(h.ctx, big)
	require.NoError(t, err)

	// cranks carry no lease check
	crank := pool.NewRequest(pool.Instruction{Kind: pool.KindActivateBuffer}, types.ZeroAddress)
	_, err = h.pool.Process(h.ctx, crank)
	require.NoError(t, err)
	_, err = h.pool.Process(h.ctx, crank)
	assert.ErrorIs(t, err, pool.ErrSlotAlreadyDelegated)
}
