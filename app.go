package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/TxnLab/lstpool/internal/lib/chain"
	"github.com/TxnLab/lstpool/internal/lib/misc"
	"github.com/TxnLab/lstpool/internal/lib/pool"
	"github.com/TxnLab/lstpool/internal/lib/wallet"
)

var logLevel = new(slog.LevelVar) // Info by default

func initApp() *PoolApp {
	log.SetFlags(0)
	// Are we running on something where output is a tty - so we're being run as CLI vs as a daemon
	logger := misc.NewLogger(os.Stdout, logLevel, term.IsTerminal(int(os.Stdout.Fd())))
	slog.SetDefault(logger)
	if os.Getenv("DEBUG") == "1" {
		logLevel.Set(slog.LevelDebug)
	}

	misc.LoadEnvSettings(logger)

	// We initialize our wrapper instance first, so we can call its methods in the 'Before' lambda func
	// in initialization of cli App instance.
	appConfig := &PoolApp{logger: logger}

	appConfig.cliCmd = &cli.Command{
		Name:    "lstpool",
		Usage:   "Liquid staking pool operator tool, crank daemon and local ledger simulator",
		Version: misc.GetVersionInfo(),
		Before: func(ctx context.Context, cmd *cli.Command) error {
			// flags (data dir, pool id, params file) are only known at this point
			return appConfig.initClients(ctx, cmd)
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			return appConfig.close()
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "envfile",
				Usage:   "env file to load",
				Sources: cli.EnvVars("LSTPOOL_ENVFILE"),
				Aliases: []string{"e"},
			},
			&cli.StringFlag{
				Name:    "datadir",
				Usage:   "Directory of the local ledger. Defaults to <user config dir>/lstpool/ledger",
				Sources: cli.EnvVars("LSTPOOL_DATADIR"),
				Aliases: []string{"d"},
			},
			&cli.StringFlag{
				Name:    "params",
				Usage:   "TOML file with pool and ledger parameters. Defaults are used when unset",
				Sources: cli.EnvVars("LSTPOOL_PARAMS"),
			},
			&cli.UintFlag{
				Name:        "poolid",
				Usage:       "The program id of the pool. Every identity of the pool is derived from it",
				Sources:     cli.EnvVars("LSTPOOL_POOLID"),
				Value:       1,
				Destination: &appConfig.poolID,
				OnlyOnce:    true,
			},
		},
		Commands: []*cli.Command{
			GetDaemonCmdOpts(),
			GetPoolCmdOpts(),
			GetChainCmdOpts(),
			GetKeyCmdOpts(),
		},
	}
	return appConfig
}

type PoolApp struct {
	cliCmd *cli.Command
	logger *slog.Logger
	signer wallet.MultipleWalletSigner
	params *Params
	chain  *chain.Chain
	pool   *pool.Pool

	withdrawalsFile string

	// just here for flag bootstrapping destination
	poolID uint64
}

// initClients opens the local ledger, loads the signing keys from the environment and
// creates the pool client for the configured pool id.
func (ac *PoolApp) initClients(ctx context.Context, cmd *cli.Command) error {
	if envfile := cmd.String("envfile"); envfile != "" {
		if err := misc.LoadNamedEnvFile(ac.logger, envfile); err != nil {
			return err
		}
	}
	if ac.poolID == 0 {
		return fmt.Errorf("the pool id must be set using either --poolid or LSTPOOL_POOLID env var")
	}

	params, err := LoadParams(cmd.String("params"))
	if err != nil {
		return err
	}
	ac.params = params

	// This will load and initialize mnemonics from the environment - and handles all 'local' signing for the app
	ac.signer, err = wallet.NewLocalKeyStore(ac.logger)
	if err != nil {
		return err
	}

	dataDir := cmd.String("datadir")
	if dataDir == "" {
		if dataDir, err = defaultDataDir(); err != nil {
			return err
		}
	}
	ac.withdrawalsFile = WithdrawalsFilename(dataDir, ac.poolID)
	ac.chain, err = chain.Open(dataDir, params.Chain, ac.logger)
	if err != nil {
		return err
	}
	ac.pool = pool.New(crypto.GetApplicationAddress(ac.poolID), ac.chain, params.Pool, ac.logger)
	return nil
}

func (ac *PoolApp) close() error {
	if ac.chain == nil {
		return nil
	}
	return ac.chain.Close()
}

func checkSetup(ctx context.Context, _ *cli.Command) error {
	isSetup, err := App.pool.IsSetup(ctx)
	if err != nil {
		return err
	}
	if !isSetup {
		return fmt.Errorf("pool %d is not set up, run 'pool setup' first", App.poolID)
	}
	return nil
}

func defaultDataDir() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "lstpool", "ledger"), nil
}
