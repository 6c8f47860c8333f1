/*
 * Copyright (c) 2021. TxnLab Inc.
 * All Rights reserved.
 */

package wallet

import (
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/TxnLab/lstpool/internal/lib/pool"
)

type MultipleWalletSigner interface {
	HasAccount(publicAddress string) bool
	Accounts() []string
	SignRequest(req *pool.Request, publicAddress string) error
	FindFirstSigner(addresses []string) (string, error)
}

// SignAs signs req with the local key of every address in signers.
func SignAs(keys MultipleWalletSigner, req *pool.Request, signers ...types.Address) error {
	for _, signer := range signers {
		if err := keys.SignRequest(req, signer.String()); err != nil {
			return fmt.Errorf("signing %s request: %w", kindOf(req), err)
		}
	}
	return nil
}

func kindOf(req *pool.Request) string {
	ix, err := pool.DecodeInstruction(req.Data)
	if err != nil {
		return "invalid"
	}
	return ix.Kind.String()
}

// NewAccount generates a fresh account, returning its address and mnemonic.
func NewAccount() (types.Address, string, error) {
	account := crypto.GenerateAccount()
	phrase, err := mnemonic.FromPrivateKey(account.PrivateKey)
	if err != nil {
		return types.ZeroAddress, "", err
	}
	return account.Address, phrase, nil
}
