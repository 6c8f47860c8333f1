package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lstpool/internal/lib/misc"
	"github.com/TxnLab/lstpool/internal/lib/pool"
	"github.com/TxnLab/lstpool/internal/lib/wallet"
)

func GetPoolCmdOpts() *cli.Command {
	fromFlag := &cli.StringFlag{
		Name:  "from",
		Usage: "The account acting - its mnemonic must be available locally",
	}
	amountFlag := &cli.StringFlag{
		Name:  "amount",
		Usage: "Amount in whole coins, decimals allowed (ie: 12.5)",
	}
	return &cli.Command{
		Name:    "pool",
		Aliases: []string{"p"},
		Usage:   "Set up and use the staking pool",
		Commands: []*cli.Command{
			{
				Name:  "setup",
				Usage: "Set up the pool - should only be done ONCE, EVER !",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "initializer",
						Usage: "Account paying for setup. Becomes the pool admin and receives the setup shares",
					},
					&cli.StringFlag{
						Name:  "mint",
						Usage: "Address of the share mint. Its key must be local as it signs the setup",
					},
					&cli.StringFlag{
						Name:  "agent",
						Usage: "Validating agent all pool stake is delegated to",
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Don't ask for confirmation",
					},
				},
				Action: PoolSetup,
			},
			{
				Name:   "state",
				Usage:  "Show the pool configuration, slots, totals and exchange rate",
				Before: checkSetup,
				Action: PoolState,
			},
			{
				Name:   "holding",
				Usage:  "Show the shares held by an account and what they currently redeem for",
				Before: checkSetup,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "holder",
						Usage:    "Account to look up",
						Required: true,
					},
				},
				Action: PoolHolding,
			},
			{
				Name:   "deposit",
				Usage:  "Deposit into the pool in exchange for shares",
				Before: checkSetup,
				Flags:  []cli.Flag{fromFlag, amountFlag},
				Action: PoolDeposit,
			},
			{
				Name:    "withdraw",
				Aliases: []string{"w"},
				Usage:   "Withdraw from the pool. Withdrawals are started, then finished once the stake has cooled down",
				Before:  checkSetup,
				Commands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "Burn shares for an amount and start deactivating it",
						Flags:  []cli.Flag{fromFlag, amountFlag},
						Action: WithdrawStart,
					},
					{
						Name:  "finish",
						Usage: "Pay out deactivated withdrawals",
						Flags: []cli.Flag{
							fromFlag,
							&cli.UintFlag{
								Name:  "nonce",
								Usage: "The withdrawal to finish. All pending withdrawals of the account when unset",
							},
						},
						Action: WithdrawFinish,
					},
					{
						Name:    "list",
						Aliases: []string{"l"},
						Usage:   "List pending withdrawals started from this machine",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "from",
								Usage: "Only list withdrawals of this account",
							},
						},
						Action: WithdrawList,
					},
				},
			},
			{
				Name:   "crank",
				Usage:  "Move deposits along manually. Normally happens automatically as part of daemon operations",
				Before: checkSetup,
				Commands: []*cli.Command{
					{
						Name:   "activate",
						Usage:  "Delegate the deposits collected in the buffer slot",
						Action: CrankActivate,
					},
					{
						Name:   "merge",
						Usage:  "Merge the activated buffer slot into the primary slot",
						Action: CrankMerge,
					},
				},
			},
		},
	}
}

// submit signs a request for ix with the local keys of signers and processes it.
func submit(ctx context.Context, ix pool.Instruction, caller, mint types.Address, signers ...types.Address) (*pool.Result, error) {
	req := pool.NewRequest(ix, caller)
	req.Mint = mint
	if err := wallet.SignAs(App.signer, req, signers...); err != nil {
		return nil, err
	}
	return App.pool.Process(ctx, req)
}

func PoolSetup(ctx context.Context, command *cli.Command) error {
	isSetup, err := App.pool.IsSetup(ctx)
	if err != nil {
		return err
	}
	if isSetup {
		return cli.Exit(fmt.Errorf("pool %d is already set up", App.poolID), 1)
	}
	initializer, err := accountArg(command, "initializer", "Enter account address of the initializer (pool admin)", true)
	if err != nil {
		return err
	}
	mint, err := accountArg(command, "mint", "Enter address for the share mint", true)
	if err != nil {
		return err
	}
	agent, err := accountArg(command, "agent", "Enter address of the validating agent", false)
	if err != nil {
		return err
	}

	params := App.pool.Params()
	rent := App.chain.Params().MinimumBalance(pool.StakeSlotSpace)
	fmt.Printf("Pool %d\n  program:     %s\n  initializer: %s\n  share mint:  %s\n  agent:       %s\n",
		App.poolID, App.pool.Addrs.Program, initializer, mint, agent)
	fmt.Printf("Setup stake of %s plus slot reserves of %s each will be paid by the initializer\n",
		misc.FormattedAmount(params.SetupStake), misc.FormattedAmount(rent))
	if !command.Bool("yes") {
		if err = confirm("Set up this pool"); err != nil {
			return err
		}
	}

	res, err := submit(ctx, pool.Instruction{Kind: pool.KindSetup, Agent: agent}, initializer, mint, initializer, mint)
	if err != nil {
		return err
	}
	fmt.Printf("pool set up in txn %s, %s shares minted to %s\n", res.TxID, misc.FormattedAmount(res.Shares), initializer)
	return nil
}

func PoolState(ctx context.Context, _ *cli.Command) error {
	state, err := App.pool.State(ctx)
	if err != nil {
		return err
	}
	epoch, err := App.chain.Epoch(ctx)
	if err != nil {
		return err
	}
	slotDesc := func(si pool.SlotInfo) string {
		return fmt.Sprintf("%s [%s/%s] %s", si.Address, si.State(), si.Status, misc.FormattedAmount(si.Balance))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Pool", fmt.Sprintf("%d (epoch %d)", App.poolID, epoch)})
	table.SetAutoWrapText(false)
	table.AppendBulk([][]string{
		{"Program", App.pool.Addrs.Program.String()},
		{"Authority", App.pool.Addrs.Authority.String()},
		{"Admin", state.Config.Admin.String()},
		{"Share mint", state.Config.ShareMint.String()},
		{"Agent", state.Config.Agent.String()},
		{"Primary slot", slotDesc(state.Primary)},
		{"Buffer slot", slotDesc(state.Buffer)},
		{"Shares", misc.FormattedAmount(state.Totals.Shares)},
		{"Managed", misc.FormattedAmount(state.Totals.Managed)},
		{"Exchange rate", state.Totals.Rate().String()},
		{"Min deposit", misc.FormattedAmount(App.pool.Params().MinimumDeposit)},
		{"Min withdrawal", misc.FormattedAmount(state.WithdrawalFloor)},
	})
	table.Render()
	return nil
}

func PoolHolding(ctx context.Context, command *cli.Command) error {
	holder, err := types.DecodeAddress(command.String("holder"))
	if err != nil {
		return err
	}
	holding, err := App.pool.Holding(ctx, holder)
	if err != nil {
		return err
	}
	fmt.Printf("%s holds %s shares, redeemable for %s\n", holder, misc.FormattedAmount(holding.Shares),
		misc.FormattedAmount(holding.Redeemable))
	return nil
}

func PoolDeposit(ctx context.Context, command *cli.Command) error {
	from, err := accountArg(command, "from", "Enter account address to deposit from", true)
	if err != nil {
		return err
	}
	amount, err := amountArg(command, "amount")
	if err != nil {
		return err
	}
	res, err := submit(ctx, pool.Instruction{Kind: pool.KindDeposit, Amount: amount}, from, types.ZeroAddress, from)
	if err != nil {
		return err
	}
	fmt.Printf("deposited %s, received %s shares, rate now %s\n", misc.FormattedAmount(amount),
		misc.FormattedAmount(res.Shares), res.Totals.Rate())
	return nil
}

func WithdrawStart(ctx context.Context, command *cli.Command) error {
	from, err := accountArg(command, "from", "Enter account address to withdraw for", true)
	if err != nil {
		return err
	}
	amount, err := amountArg(command, "amount")
	if err != nil {
		return err
	}
	book, err := LoadWithdrawals(App.withdrawalsFile, App.poolID)
	if err != nil {
		return err
	}
	// skip nonces whose slot still exists, ie: the withdrawals file was lost
	nonce := book.NextNonce(from.String())
	for {
		slot, err := App.pool.Withdrawal(ctx, from, nonce)
		if err != nil {
			return err
		}
		if !slot.Exists() {
			break
		}
		nonce = book.NextNonce(from.String())
	}

	res, err := submit(ctx, pool.Instruction{Kind: pool.KindInitiateWithdrawal, Amount: amount, Nonce: nonce},
		from, types.ZeroAddress, from)
	if err != nil {
		return err
	}
	book.Add(PendingWithdrawal{
		Owner:        from.String(),
		Nonce:        nonce,
		Slot:         res.Slot.String(),
		Amount:       res.Amount,
		SharesBurned: res.Shares,
		Started:      time.Now(),
	})
	if err = SaveWithdrawals(App.withdrawalsFile, book); err != nil {
		return fmt.Errorf("withdrawal %d started but not recorded locally: %w", nonce, err)
	}
	fmt.Printf("withdrawal %d started: %s burned for %s in slot %s\n", nonce, misc.FormattedAmount(res.Shares),
		misc.FormattedAmount(res.Amount), res.Slot)
	return nil
}

func WithdrawFinish(ctx context.Context, command *cli.Command) error {
	from, err := accountArg(command, "from", "Enter account address to finish withdrawals for", true)
	if err != nil {
		return err
	}
	book, err := LoadWithdrawals(App.withdrawalsFile, App.poolID)
	if err != nil {
		return err
	}
	var pending []PendingWithdrawal
	if nonce := command.Value("nonce").(uint64); nonce != 0 {
		pending = []PendingWithdrawal{{Owner: from.String(), Nonce: nonce}}
	} else {
		pending = book.ForOwner(from.String())
	}
	if len(pending) == 0 {
		fmt.Println("no pending withdrawals")
		return nil
	}

	var finished int
	for _, wd := range pending {
		paid, err := finalizeWithdrawal(ctx, wd)
		switch {
		case errors.Is(err, pool.ErrCooldownNotElapsed):
			fmt.Printf("withdrawal %d is still cooling down\n", wd.Nonce)
			continue
		case errors.Is(err, pool.ErrSlotNotFound):
			// already paid out, drop the stale record
			book.Remove(wd.Owner, wd.Nonce)
			finished++
			continue
		case err != nil:
			return err
		}
		book.Remove(wd.Owner, wd.Nonce)
		finished++
		fmt.Printf("withdrawal %d finished, %s paid to %s\n", wd.Nonce, misc.FormattedAmount(paid), wd.Owner)
	}
	if finished == 0 {
		return nil
	}
	return SaveWithdrawals(App.withdrawalsFile, book)
}

// finalizeWithdrawal finishes wd, signing as its owner.
func finalizeWithdrawal(ctx context.Context, wd PendingWithdrawal) (uint64, error) {
	owner, err := types.DecodeAddress(wd.Owner)
	if err != nil {
		return 0, err
	}
	res, err := submit(ctx, pool.Instruction{Kind: pool.KindFinalizeWithdrawal, Nonce: wd.Nonce}, owner, types.ZeroAddress, owner)
	if err != nil {
		return 0, err
	}
	return res.Amount, nil
}

func WithdrawList(ctx context.Context, command *cli.Command) error {
	book, err := LoadWithdrawals(App.withdrawalsFile, App.poolID)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Owner", "Nonce", "Amount", "Shares Burned", "Slot Status", "Started"})
	table.SetAutoWrapText(false)
	for _, wd := range book.ForOwner(command.String("from")) {
		status := "unknown"
		if owner, err := types.DecodeAddress(wd.Owner); err == nil {
			if slot, err := App.pool.Withdrawal(ctx, owner, wd.Nonce); err == nil {
				status = fmt.Sprintf("%s (%s)", slot.State(), slot.Status)
			}
		}
		table.Append([]string{wd.Owner, fmt.Sprint(wd.Nonce), misc.FormattedAmount(wd.Amount),
			misc.FormattedAmount(wd.SharesBurned), status, wd.Started.Format(time.DateTime)})
	}
	table.Render()
	return nil
}

func CrankActivate(ctx context.Context, _ *cli.Command) error {
	res, err := App.pool.Process(ctx, pool.NewRequest(pool.Instruction{Kind: pool.KindActivateBuffer}, types.ZeroAddress))
	if err != nil {
		return err
	}
	fmt.Printf("buffer slot delegated with %s\n", misc.FormattedAmount(res.Amount))
	return nil
}

func CrankMerge(ctx context.Context, _ *cli.Command) error {
	res, err := App.pool.Process(ctx, pool.NewRequest(pool.Instruction{Kind: pool.KindMergeBuffer}, types.ZeroAddress))
	if err != nil {
		return err
	}
	fmt.Printf("merged %s into the primary slot\n", misc.FormattedAmount(res.Amount))
	return nil
}
