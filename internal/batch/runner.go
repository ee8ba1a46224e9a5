// Package batch runs sign-in exchanges for a list of accounts, one after
// another, saving the credential store after every success so an
// interrupted run loses at most the account in flight.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/majorcontext/zedlogin/internal/account"
	"github.com/majorcontext/zedlogin/internal/audit"
	"github.com/majorcontext/zedlogin/internal/credential"
	"github.com/majorcontext/zedlogin/internal/exchange"
	"github.com/majorcontext/zedlogin/internal/log"
)

// DefaultDelay is the pause between accounts.
const DefaultDelay = time.Second

// Exchanger runs one exchange. *exchange.Orchestrator satisfies it.
type Exchanger interface {
	Exchange(ctx context.Context, acct account.Account) (*exchange.Result, error)
}

// Store persists results. *credential.Store satisfies it.
type Store interface {
	Save(results []credential.Result) error
}

// Recorder keeps a history of attempts. *audit.Store satisfies it.
type Recorder interface {
	Record(a audit.Attempt) error
}

// Observer receives every attempt. *metrics.Registry satisfies it.
type Observer interface {
	Observe(a audit.Attempt)
}

// Reporter shows progress to the user.
type Reporter interface {
	Started(index, total int, acct account.Account)
	Succeeded(acct account.Account, res *exchange.Result)
	Failed(acct account.Account, err error)
}

// Config holds optional runner settings.
type Config struct {
	// Delay between accounts. Negative disables it; zero means DefaultDelay.
	Delay    time.Duration
	Recorder Recorder
	Observer Observer
	Reporter Reporter
}

// Failure is one account that did not produce a credential.
type Failure struct {
	Account string
	Outcome string
	Err     error
}

// Summary is the result of a batch.
type Summary struct {
	Attempted int
	Succeeded int
	Results   []credential.Result
	Failures  []Failure
}

// String renders the success count as "succeeded/attempted".
func (s Summary) String() string {
	return fmt.Sprintf("%d/%d", s.Succeeded, s.Attempted)
}

// Runner processes accounts sequentially.
type Runner struct {
	ex    Exchanger
	store Store
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a runner that exchanges with ex and saves into store.
func New(ex Exchanger, store Store, cfg Config) *Runner {
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}
	return &Runner{ex: ex, store: store, cfg: cfg, sleep: sleepCtx}
}

// Run exchanges every account in order. Per-account failures are collected
// in the Summary and do not stop the batch. A fatal failure, a store write
// failure or ctx cancellation stops it and is returned together with the
// partial Summary.
func (r *Runner) Run(ctx context.Context, accts []account.Account) (Summary, error) {
	var sum Summary

	for i, acct := range accts {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if i > 0 && r.cfg.Delay > 0 {
			if err := r.sleep(ctx, r.cfg.Delay); err != nil {
				return sum, err
			}
		}

		sum.Attempted++
		r.cfg.Reporter.Started(i, len(accts), acct)

		start := time.Now()
		res, err := r.attempt(ctx, acct)
		r.record(acct, res, err, time.Since(start))

		if err != nil {
			outcome := exchange.Outcome(err)
			log.Warn("account failed", "account", acct.String(), "outcome", outcome, "error", err)
			sum.Failures = append(sum.Failures, Failure{Account: acct.String(), Outcome: outcome, Err: err})
			r.cfg.Reporter.Failed(acct, err)

			if exchange.IsFatal(err) {
				return sum, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, ctxErr
			}
			continue
		}

		sum.Succeeded++
		sum.Results = append(sum.Results, res.Result)
		if err := r.store.Save(sum.Results); err != nil {
			return sum, fmt.Errorf("%w: saving credential store: %w", exchange.ErrFatal, err)
		}
		log.Debug("credential store saved", "results", len(sum.Results))
		r.cfg.Reporter.Succeeded(acct, res)
	}
	return sum, nil
}

func (r *Runner) attempt(ctx context.Context, acct account.Account) (*exchange.Result, error) {
	resolved, err := acct.ResolveSecrets(ctx)
	if err != nil {
		return nil, &exchange.Error{Account: acct.String(), Kind: exchange.ErrSecretResolution, Err: err}
	}
	return r.ex.Exchange(ctx, resolved)
}

func (r *Runner) record(acct account.Account, res *exchange.Result, err error, d time.Duration) {
	a := audit.Attempt{
		Account:  acct.String(),
		Outcome:  exchange.Outcome(err),
		Duration: d,
	}
	var exErr *exchange.Error
	switch {
	case res != nil:
		a.SessionID = res.SessionID
		a.Name = res.Name
		a.UserID = res.UserID
	case errors.As(err, &exErr):
		a.SessionID = exErr.SessionID
	}

	if r.cfg.Observer != nil {
		r.cfg.Observer.Observe(a)
	}
	if r.cfg.Recorder != nil {
		if rerr := r.cfg.Recorder.Record(a); rerr != nil {
			// History is best effort.
			log.Warn("recording exchange history", "error", rerr)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopReporter struct{}

func (nopReporter) Started(int, int, account.Account)            {}
func (nopReporter) Succeeded(account.Account, *exchange.Result) {}
func (nopReporter) Failed(account.Account, error)               {}
