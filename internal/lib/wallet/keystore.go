/*
 * Copyright (c) 2022. TxnLab Inc.
 * All Rights reserved.
 */

package wallet

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"golang.org/x/crypto/ed25519"

	"github.com/TxnLab/lstpool/internal/lib/misc"
	"github.com/TxnLab/lstpool/internal/lib/pool"
)

// MnemonicPrefix is the prefix of env vars (or .env entries) holding account mnemonics.
const MnemonicPrefix = "LSTPOOL_MNEMONIC"

// NewLocalKeyStore returns a keystore holding every mnemonic found in the environment.
func NewLocalKeyStore(log *slog.Logger) (MultipleWalletSigner, error) {
	keyStore := &localKeyStore{
		log:  log,
		keys: map[string]ed25519.PrivateKey{},
	}
	if err := keyStore.loadFromEnvironment(); err != nil {
		return nil, err
	}
	return keyStore, nil
}

type localKeyStore struct {
	log *slog.Logger

	keys map[string]ed25519.PrivateKey
}

func (lk *localKeyStore) HasAccount(publicAddress string) bool {
	_, found := lk.keys[publicAddress]
	return found
}

func (lk *localKeyStore) Accounts() []string {
	var addrs []string
	for addr := range lk.keys {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	return addrs
}

func (lk *localKeyStore) SignRequest(req *pool.Request, publicAddress string) error {
	key, found := lk.keys[publicAddress]
	if !found {
		return fmt.Errorf("key not found for address %s", publicAddress)
	}
	req.Sign(key)
	return nil
}

// FindFirstSigner returns the first of addresses that has a local key.
func (lk *localKeyStore) FindFirstSigner(addresses []string) (string, error) {
	for _, addr := range addresses {
		if lk.HasAccount(addr) {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no local keys for any of %v", addresses)
}

// loadFromEnvironment loads mnemonics from every secret whose name starts with
// MnemonicPrefix. The number of loaded mnemonics is logged as well as the address of each.
func (lk *localKeyStore) loadFromEnvironment() error {
	var numMnemonics int
	for _, key := range misc.SecretKeys(MnemonicPrefix) {
		envMnemonic := misc.GetSecret(key)
		if envMnemonic == "" {
			continue
		}
		if err := lk.addMnemonic(envMnemonic); err != nil {
			return fmt.Errorf("mnemonic in %s: %w", key, err)
		}
		numMnemonics++
	}
	misc.Debugf(lk.log, "loaded %d mnemonics", numMnemonics)
	return nil
}

func (lk *localKeyStore) addMnemonic(mnemonicPhrase string) error {
	key, err := mnemonic.ToPrivateKey(mnemonicPhrase)
	if err != nil {
		return fmt.Errorf("failed to add mnemonic: %w", err)
	}
	account, err := crypto.AccountFromPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to add mnemonic: %w", err)
	}
	lk.keys[account.Address.String()] = key
	misc.Debugf(lk.log, "added key for address:%s", account.Address.String())
	return nil
}
