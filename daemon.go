package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/mailgun/holster/v4/syncutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssgreg/repeat"
	"github.com/urfave/cli/v3"

	"github.com/TxnLab/lstpool/internal/lib/chain"
	"github.com/TxnLab/lstpool/internal/lib/misc"
	"github.com/TxnLab/lstpool/internal/lib/pool"
	"github.com/TxnLab/lstpool/internal/lib/wallet"
)

// Daemon keeps a pool moving without user interaction: it activates and merges the buffer
// slot as soon as the ledger allows, pays out withdrawals whose owners have local keys and,
// for local testing, can advance the ledger's epochs on a wall clock schedule.
type Daemon struct {
	logger *slog.Logger
	pool   *pool.Pool
	chain  *chain.Chain
	signer wallet.MultipleWalletSigner

	poolID          uint64
	withdrawalsFile string

	crankInterval time.Duration
	epochMinutes  int
	rewardBPS     uint64
	metricsAddr   string

	// serializes cranks between the interval loop and the epoch ticker
	sync.Mutex
}

func newDaemon(cmd *cli.Command) *Daemon {
	return &Daemon{
		logger:          App.logger,
		pool:            App.pool,
		chain:           App.chain,
		signer:          App.signer,
		poolID:          App.poolID,
		withdrawalsFile: App.withdrawalsFile,
		crankInterval:   cmd.Duration("interval"),
		epochMinutes:    int(cmd.Value("epoch-minutes").(uint64)),
		rewardBPS:       cmd.Value("reward-bps").(uint64),
		metricsAddr:     cmd.String("metrics"),
	}
}

func (d *Daemon) start(ctx context.Context, wg *sync.WaitGroup) {
	d.logger.Info("Starting lstpool daemon")

	if d.metricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.serveMetrics(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Cranker(ctx)
	}()

	if d.epochMinutes > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.EpochTicker(ctx)
		}()
	}
}

// Cranker runs a crank pass every crankInterval.
func (d *Daemon) Cranker(ctx context.Context) {
	defer d.logger.Info("Exiting Cranker")
	d.logger.Info("Starting Cranker")

	d.crank(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.crankInterval):
			d.crank(ctx)
		}
	}
}

// EpochTicker advances the local ledger's epoch on every epochMinutes boundary of the wall clock.
func (d *Daemon) EpochTicker(ctx context.Context) {
	defer d.logger.Info("Exiting EpochTicker")
	misc.Infof(d.logger, "Starting EpochTicker, epoch every %d minutes, reward:%d bps", d.epochMinutes, d.rewardBPS)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(durationToNextEpoch(time.Now(), d.epochMinutes)):
			if _, _, err := d.chain.AdvanceEpoch(ctx, d.rewardBPS); err != nil {
				misc.Errorf(d.logger, "unable to advance epoch: %v", err)
				continue
			}
			// slots may have just finished warming up or cooling down
			d.crank(ctx)
		}
	}
}

// durationToNextEpoch returns how long until the next multiple of epochMinutes since the
// unix epoch. Exactly on a boundary, a full period is returned.
func durationToNextEpoch(curTime time.Time, epochMinutes int) time.Duration {
	period := time.Duration(epochMinutes) * time.Minute
	return curTime.Truncate(period).Add(period).Sub(curTime)
}

// crank merges an active buffer slot, delegates any new deposits and pays out ready
// withdrawals. Steps that can't happen yet are skipped silently.
func (d *Daemon) crank(ctx context.Context) {
	d.Lock()
	defer d.Unlock()

	for _, kind := range []pool.Kind{pool.KindMergeBuffer, pool.KindActivateBuffer} {
		if err := d.runCrank(ctx, kind); err != nil {
			misc.Errorf(d.logger, "%s failed: %v", kind, err)
		}
	}
	if err := d.finalizeWithdrawals(ctx); err != nil {
		misc.Errorf(d.logger, "finalizing withdrawals: %v", err)
	}
	// refreshes the supply / managed / rate gauges
	if _, err := d.pool.State(ctx); err != nil {
		misc.Warnf(d.logger, "unable to read pool state: %v", err)
	}
}

func (d *Daemon) runCrank(ctx context.Context, kind pool.Kind) error {
	return repeat.Repeat(
		repeat.Fn(func() error {
			res, err := d.pool.Process(ctx, pool.NewRequest(pool.Instruction{Kind: kind}, types.ZeroAddress))
			switch {
			case err == nil:
				misc.Infof(d.logger, "%s: moved %s", kind, misc.FormattedAmount(res.Amount))
				return nil
			case pool.IsCrankPending(err):
				misc.Debugf(d.logger, "%s: nothing to do, %v", kind, err)
				return nil
			case errors.Is(err, context.Canceled):
				return repeat.HintStop(err)
			case errors.Is(err, pool.ErrInvariantViolated), errors.Is(err, pool.ErrConfigNotInitialized):
				return err
			}
			return repeat.HintTemporary(err)
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(5),
		repeat.FnOnError(func(err error) error {
			misc.Warnf(d.logger, "retrying %s, error:%v", kind, err)
			return err
		}),
		repeat.WithDelay(
			repeat.SetContext(ctx),
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: 1 * time.Second,
				MaxDelay:  10 * time.Second,
			}).Set(),
		),
	)
}

// finalizeWithdrawals tries to finish every locally recorded withdrawal whose owner has a
// local key. Withdrawals still cooling down are left for a later pass.
func (d *Daemon) finalizeWithdrawals(ctx context.Context) error {
	book, err := LoadWithdrawals(d.withdrawalsFile, d.poolID)
	if err != nil {
		return err
	}
	var (
		fanOut = syncutil.NewFanOut(8)
		doneCh = make(chan PendingWithdrawal, len(book.Withdrawals))
	)
	for _, wd := range book.Withdrawals {
		if !d.signer.HasAccount(wd.Owner) {
			continue
		}
		fanOut.Run(func(val any) error {
			wd := val.(PendingWithdrawal)
			paid, err := finalizeWithdrawal(ctx, wd)
			switch {
			case errors.Is(err, pool.ErrCooldownNotElapsed):
				return nil
			case errors.Is(err, pool.ErrSlotNotFound):
				misc.Warnf(d.logger, "withdrawal %d of %s no longer exists, dropping it", wd.Nonce, wd.Owner)
			case err != nil:
				return err
			default:
				misc.Infof(d.logger, "withdrawal %d finished, %s paid to %s", wd.Nonce, misc.FormattedAmount(paid), wd.Owner)
			}
			doneCh <- wd
			return nil
		}, wd)
	}
	errs := fanOut.Wait()
	close(doneCh)

	var removed int
	for wd := range doneCh {
		if book.Remove(wd.Owner, wd.Nonce) {
			removed++
		}
	}
	if removed > 0 {
		if err = SaveWithdrawals(d.withdrawalsFile, book); err != nil {
			return err
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (d *Daemon) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              d.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	misc.Infof(d.logger, "serving metrics on %s/metrics", d.metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		misc.Errorf(d.logger, "metrics server: %v", err)
	}
}
