package main

import (
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lstpool/internal/lib/misc"
)

var errAborted = errors.New("aborted")

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}

// confirm asks for a y/N answer; anything but yes is errAborted.
func confirm(prompt string) error {
	result, err := yesNo(prompt)
	if err != nil || result != "y" {
		return errAborted
	}
	return nil
}

// getAccount prompts for an address. With needKey set, the address must have a local key.
func getAccount(prompt string, defVal string, needKey bool) (types.Address, error) {
	result, err := (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			if _, err := types.DecodeAddress(s); err != nil {
				return err
			}
			if needKey && !App.signer.HasAccount(s) {
				return fmt.Errorf("no local key for %s", s)
			}
			return nil
		},
	}).Run()
	if err != nil {
		return types.ZeroAddress, err
	}
	return types.DecodeAddress(result)
}

// accountArg returns the address in flag name, prompting for it when the flag is empty.
func accountArg(cmd *cli.Command, name, prompt string, needKey bool) (types.Address, error) {
	value := cmd.String(name)
	if value == "" {
		var defVal string
		if needKey {
			if accounts := App.signer.Accounts(); len(accounts) > 0 {
				defVal = accounts[0]
			}
		}
		return getAccount(prompt, defVal, needKey)
	}
	addr, err := types.DecodeAddress(value)
	if err != nil {
		return types.ZeroAddress, fmt.Errorf("invalid --%s address %q: %w", name, value, err)
	}
	if needKey && !App.signer.HasAccount(value) {
		return types.ZeroAddress, fmt.Errorf("the mnemonic for --%s %s isn't available", name, value)
	}
	return addr, nil
}

// amountArg parses the whole-coin amount in flag name into base units.
func amountArg(cmd *cli.Command, name string) (uint64, error) {
	value := cmd.String(name)
	if value == "" {
		result, err := (&promptui.Prompt{
			Label: "Amount",
			Validate: func(s string) error {
				_, err := misc.ParseAmount(s)
				return err
			},
		}).Run()
		if err != nil {
			return 0, err
		}
		value = result
	}
	return misc.ParseAmount(value)
}
