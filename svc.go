package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lstpool/internal/lib/misc"
)

func GetDaemonCmdOpts() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Aliases: []string{"d"},
		Usage:   "Run the application as a daemon, cranking the pool and finishing local withdrawals",
		Before:  checkSetup, // make sure the pool is already set up
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "How often to crank the buffer slot and check pending withdrawals",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("LSTPOOL_CRANK_INTERVAL"),
			},
			&cli.UintFlag{
				Name:    "epoch-minutes",
				Usage:   "Advance the local ledger's epoch on this wall clock period. 0 leaves epochs alone",
				Sources: cli.EnvVars("LSTPOOL_EPOCH_MINUTES"),
			},
			&cli.UintFlag{
				Name:    "reward-bps",
				Usage:   "Rewards paid at each automatic epoch advance, in basis points of active stake",
				Sources: cli.EnvVars("LSTPOOL_REWARD_BPS"),
			},
			&cli.StringFlag{
				Name:    "metrics",
				Usage:   "Address to serve prometheus metrics on. Empty disables",
				Value:   ":8080",
				Sources: cli.EnvVars("LSTPOOL_METRICS_ADDR"),
			},
		},
		Action: runAsDaemon,
	}
}

func runAsDaemon(ctx context.Context, cmd *cli.Command) error {
	var wg sync.WaitGroup

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(ctx)

	newDaemon(cmd).start(ctx, &wg)

	misc.Infof(App.logger, "exiting (%v)", <-errc) // wait for termination signal

	// Send cancellation signal to the goroutines.
	cancel()
	misc.Infof(App.logger, "waiting on background tasks..")
	wg.Wait()

	misc.Infof(App.logger, "exited")
	return nil
}
