package main

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lstpool/internal/lib/misc"
	"github.com/TxnLab/lstpool/internal/lib/wallet"
)

func GetKeyCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "key",
		Aliases: []string{"k"},
		Usage:   "Local signing key related commands",
		Commands: []*cli.Command{
			{
				Name:   "new",
				Usage:  "Generate a new account and print its mnemonic",
				Action: KeyNew,
			},
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List accounts with local keys",
				Action:  KeysList,
			},
		},
	}
}

func KeyNew(_ context.Context, _ *cli.Command) error {
	addr, phrase, err := wallet.NewAccount()
	if err != nil {
		return err
	}
	fmt.Println("Address:", addr)
	fmt.Println("Mnemonic:", phrase)
	fmt.Printf("Add it to your environment (or .env) as %s_<NAME>=\"%s\" to sign with it\n", wallet.MnemonicPrefix, phrase)
	return nil
}

func KeysList(ctx context.Context, _ *cli.Command) error {
	accounts := App.signer.Accounts()
	if len(accounts) == 0 {
		fmt.Printf("no local keys, set %s_* env vars with account mnemonics\n", wallet.MnemonicPrefix)
		return nil
	}
	for _, account := range accounts {
		addr, err := types.DecodeAddress(account)
		if err != nil {
			return err
		}
		balance, err := App.chain.Balance(ctx, addr)
		if err != nil {
			return err
		}
		holding, err := App.pool.Holding(ctx, addr)
		if err != nil {
			// pool not set up yet
			fmt.Printf("%s\tbalance:%s\n", account, misc.FormattedAmount(balance))
			continue
		}
		fmt.Printf("%s\tbalance:%s\tshares:%s\n", account, misc.FormattedAmount(balance), misc.FormattedAmount(holding.Shares))
	}
	return nil
}
