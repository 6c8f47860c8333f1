package main

import (
	"context"
	"fmt"
	"os"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lstpool/internal/lib/misc"
)

func GetChainCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "chain",
		Aliases: []string{"c"},
		Usage:   "Drive the local ledger: funding, agents, epochs and rewards",
		Commands: []*cli.Command{
			{
				Name:  "fund",
				Usage: "Credit an account out of thin air",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Account to fund",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Amount in whole coins",
						Required: true,
					},
				},
				Action: ChainFund,
			},
			{
				Name:  "agent",
				Usage: "Validating agents",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Register a validating agent that stake can be delegated to",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "address",
								Usage:    "Agent address",
								Required: true,
							},
						},
						Action: ChainAgentAdd,
					},
				},
			},
			{
				Name:  "epoch",
				Usage: "Show the current epoch",
				Commands: []*cli.Command{
					{
						Name:  "advance",
						Usage: "Close the current epoch, paying rewards to active stake",
						Flags: []cli.Flag{
							&cli.UintFlag{
								Name:  "reward-bps",
								Usage: "Reward for the epoch in basis points of active stake",
							},
							&cli.UintFlag{
								Name:  "count",
								Usage: "Number of epochs to advance",
								Value: 1,
							},
						},
						Action: ChainEpochAdvance,
					},
				},
				Action: ChainEpoch,
			},
			{
				Name:  "reward",
				Usage: "Add a one-off reward to a delegated stake slot (the pool's primary slot by default)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "slot",
						Usage: "Stake slot to reward",
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Amount in whole coins",
						Required: true,
					},
				},
				Action: ChainReward,
			},
			{
				Name:   "slots",
				Usage:  "List every stake slot on the ledger",
				Action: ChainSlots,
			},
			{
				Name:  "balance",
				Usage: "Show the plain balance of an account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Account to look up",
						Required: true,
					},
				},
				Action: ChainBalance,
			},
		},
	}
}

func addressFlag(command *cli.Command, name string) (types.Address, error) {
	addr, err := types.DecodeAddress(command.String(name))
	if err != nil {
		return types.ZeroAddress, fmt.Errorf("invalid --%s address: %w", name, err)
	}
	return addr, nil
}

func ChainFund(ctx context.Context, command *cli.Command) error {
	to, err := addressFlag(command, "to")
	if err != nil {
		return err
	}
	amount, err := misc.ParseAmount(command.String("amount"))
	if err != nil {
		return err
	}
	if err = App.chain.Fund(ctx, to, amount); err != nil {
		return err
	}
	fmt.Printf("funded %s with %s\n", to, misc.FormattedAmount(amount))
	return nil
}

func ChainAgentAdd(ctx context.Context, command *cli.Command) error {
	agent, err := addressFlag(command, "address")
	if err != nil {
		return err
	}
	if err = App.chain.RegisterAgent(ctx, agent); err != nil {
		return err
	}
	fmt.Printf("agent %s registered\n", agent)
	return nil
}

func ChainEpoch(ctx context.Context, _ *cli.Command) error {
	epoch, err := App.chain.Epoch(ctx)
	if err != nil {
		return err
	}
	fmt.Println("epoch:", epoch)
	return nil
}

func ChainEpochAdvance(ctx context.Context, command *cli.Command) error {
	bps := command.Value("reward-bps").(uint64)
	for i := uint64(0); i < command.Value("count").(uint64); i++ {
		epoch, rewarded, err := App.chain.AdvanceEpoch(ctx, bps)
		if err != nil {
			return err
		}
		fmt.Printf("epoch %d, rewards paid: %s\n", epoch, misc.FormattedAmount(rewarded))
	}
	return nil
}

func ChainReward(ctx context.Context, command *cli.Command) error {
	slot := App.pool.Addrs.Primary
	if command.String("slot") != "" {
		var err error
		if slot, err = addressFlag(command, "slot"); err != nil {
			return err
		}
	}
	amount, err := misc.ParseAmount(command.String("amount"))
	if err != nil {
		return err
	}
	if err = App.chain.AccrueReward(ctx, slot, amount); err != nil {
		return err
	}
	fmt.Printf("rewarded %s with %s\n", slot, misc.FormattedAmount(amount))
	return nil
}

func ChainSlots(ctx context.Context, _ *cli.Command) error {
	slots, err := App.chain.Slots(ctx)
	if err != nil {
		return err
	}
	names := map[types.Address]string{
		App.pool.Addrs.Primary: "primary",
		App.pool.Addrs.Buffer:  "buffer",
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Slot", "Role", "Status", "Balance", "Agent"})
	table.SetAutoWrapText(false)
	for _, slot := range slots {
		agent := ""
		if !slot.Agent.IsZero() {
			agent = slot.Agent.String()
		}
		table.Append([]string{slot.Address.String(), names[slot.Address], slot.Status.String(),
			misc.FormattedAmount(slot.Balance), agent})
	}
	table.Render()
	return nil
}

func ChainBalance(ctx context.Context, command *cli.Command) error {
	addr, err := addressFlag(command, "address")
	if err != nil {
		return err
	}
	balance, err := App.chain.Balance(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", addr, misc.FormattedAmount(balance))
	return nil
}
