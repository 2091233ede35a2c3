// Package poller drives the fetch, partition and dispatch cycle that turns
// fetched posts into exactly one delivery each.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fiffu/postwatch/lib/dispatch"
	"github.com/fiffu/postwatch/lib/fetcher"
	"github.com/fiffu/postwatch/lib/models"
	"go.uber.org/zap"
)

type WatermarkStore interface {
	Get(ctx context.Context, account string) (string, bool, error)
	Set(ctx context.Context, account, itemID string) error
}

type SettingsSource interface {
	Load(ctx context.Context) (models.MonitorSettings, bool, error)
}

type PolicyResolver interface {
	Resolve(ctx context.Context, account string) models.DeliveryPolicy
}

type Dispatcher interface {
	Deliver(ctx context.Context, item *models.Item, policy models.DeliveryPolicy) dispatch.Outcome
}

type RecordPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	PerAccountLimit int
	FetchTimeout    time.Duration
	DefaultInterval time.Duration // Used until settings carry an interval
	RecordTTL       time.Duration // Delivery records older than this are purged; zero keeps them
}

type wakeup string

const (
	wakeTrigger wakeup = "trigger"
	wakeReload  wakeup = "reload"
)

type Poller struct {
	log        *zap.Logger
	fetcher    fetcher.Fetcher
	watermarks WatermarkStore
	settings   SettingsSource
	policies   PolicyResolver
	dispatcher Dispatcher
	purger     RecordPurger
	opts       Options

	mu     sync.Mutex // Held for the whole of a cycle
	wake   chan wakeup
	status *statusTracker
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(
	log *zap.Logger,
	f fetcher.Fetcher,
	watermarks WatermarkStore,
	settings SettingsSource,
	policies PolicyResolver,
	dispatcher Dispatcher,
	purger RecordPurger,
	opts Options,
) *Poller {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = 5 * time.Minute
	}
	if opts.PerAccountLimit <= 0 {
		opts.PerAccountLimit = 20
	}
	return &Poller{
		log:        log,
		fetcher:    f,
		watermarks: watermarks,
		settings:   settings,
		policies:   policies,
		dispatcher: dispatcher,
		purger:     purger,
		opts:       opts,
		wake:       make(chan wakeup, 1),
		status:     newStatusTracker(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the first cycle immediately and then keeps rescheduling until Stop.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight cycle to wind down.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		p.log.Sugar().Info("Poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger asks for a cycle now. While a cycle is running the request is
// held and served as soon as it ends; repeated requests collapse into one.
// It reports false when a request was already pending.
func (p *Poller) Trigger() bool {
	return p.notify(wakeTrigger)
}

// Reload tells the poller the settings changed. The new interval and
// accounts are picked up by the next cycle, never by one in flight.
func (p *Poller) Reload() bool {
	return p.notify(wakeReload)
}

func (p *Poller) notify(reason wakeup) bool {
	select {
	case p.wake <- reason:
		return true
	default:
		return false
	}
}

func (p *Poller) Status() Status {
	return p.status.snapshot()
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	for {
		p.RunOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		interval := p.interval(ctx)
		p.status.scheduled(p.now().Add(interval))
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case reason := <-p.wake:
			timer.Stop()
			p.log.Sugar().Infow("Poller woken early", "reason", reason)
		}
	}
}

// interval re-reads the settings so a change made during a cycle applies to
// the very next wait.
func (p *Poller) interval(ctx context.Context) time.Duration {
	settings, ok, err := p.settings.Load(ctx)
	if err != nil || !ok || settings.Interval() <= 0 {
		return p.opts.DefaultInterval
	}
	return settings.Interval()
}

// RunOnce runs a single cycle, waiting for any cycle already in progress.
func (p *Poller) RunOnce(ctx context.Context) (*CycleReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startedAt := p.now()
	p.status.attempted(startedAt)

	report, err := p.runCycle(ctx, startedAt)
	p.status.setState(StateIdle)
	report.FinishedAt = p.now()

	switch {
	case err != nil && ctx.Err() != nil:
		// Shutdown, not a fault: health and the last error are left as they were.
		p.status.cancelled(report.FinishedAt, report)
		p.log.Sugar().Infow("Poll cycle cancelled", "err", err)
	case err != nil:
		kind := FailureCancelled
		var cerr *CycleError
		if errors.As(err, &cerr) {
			kind = cerr.Kind
		}
		p.status.failed(report.FinishedAt, kind, err, report)
		p.log.Sugar().Errorw("Poll cycle failed", "kind", kind, "err", err)
	default:
		p.status.succeeded(report.FinishedAt, report)
		p.logReport(report)
	}

	p.purgeOldRecords(ctx, startedAt)
	return report, err
}

type accountBatch struct {
	account string
	items   models.Items // newest first
}

func (p *Poller) runCycle(ctx context.Context, startedAt time.Time) (*CycleReport, error) {
	report := &CycleReport{StartedAt: startedAt, Advanced: map[string]string{}}

	settings, _, err := p.settings.Load(ctx)
	if err != nil {
		return report, &CycleError{FailurePersistence, "load settings", err}
	}
	accounts := normalizeAccounts(settings.Accounts)
	report.Accounts = len(accounts)
	if len(accounts) == 0 {
		report.Skipped = true
		return report, nil
	}

	p.status.setState(StateFetching)
	items, err := p.fetch(ctx, accounts)
	if err != nil {
		return report, &CycleError{FailureFetch, "fetch", err}
	}
	report.Fetched = len(items)

	p.status.setState(StatePartitioning)
	batches, err := p.partition(ctx, accounts, items, report)
	if err != nil {
		return report, err
	}

	p.status.setState(StateDispatching)
	for _, batch := range batches {
		if err := p.dispatchAccount(ctx, batch, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (p *Poller) fetch(ctx context.Context, accounts []string) (models.Items, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()
	return p.fetcher.FetchLatest(ctx, accounts, p.opts.PerAccountLimit)
}

// partition finds the new items per account. Accounts seen for the first
// time only get their watermark set to the newest id, so adding an account
// never replays its history.
func (p *Poller) partition(ctx context.Context, accounts []string, items models.Items, report *CycleReport) ([]accountBatch, error) {
	parts := Partition(accounts, items)
	report.Invalid = len(parts.Invalid)
	report.Unmatched = parts.Unmatched
	for _, item := range parts.Invalid {
		p.log.Sugar().Warnw("Dropping item without id or account", "item_id", item.ID, "account", item.Account)
	}

	var batches []accountBatch
	for _, account := range accounts {
		group := parts.Groups[account]
		if len(group) == 0 {
			continue
		}

		watermark, ok, err := p.watermarks.Get(ctx, account)
		if err != nil {
			return nil, &CycleError{FailurePersistence, "read watermark", err}
		}
		if !ok {
			if err := p.watermarks.Set(ctx, account, group[0].ID); err != nil {
				return nil, &CycleError{FailurePersistence, "bootstrap watermark", err}
			}
			report.Bootstrapped = append(report.Bootstrapped, account)
			p.log.Sugar().Infow("Bootstrapped watermark", "account", account, "item_id", group[0].ID)
			continue
		}

		if fresh := NewerThan(group, watermark); len(fresh) > 0 {
			batches = append(batches, accountBatch{account, fresh})
		}
	}
	return batches, nil
}

// dispatchAccount delivers oldest first, then advances the watermark to the
// newest id whether or not every delivery succeeded. Failed deliveries are
// left in the delivery log for an operator replay.
func (p *Poller) dispatchAccount(ctx context.Context, batch accountBatch, report *CycleReport) error {
	policy := p.policies.Resolve(ctx, batch.account)

	for i := len(batch.items) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return &CycleError{FailureCancelled, "dispatch " + batch.account, err}
		}
		out := p.dispatcher.Deliver(ctx, &batch.items[i], policy)
		report.Delivered++
		if out.Failed() > 0 {
			report.Failed++
		}
	}

	newest := batch.items[0].ID
	if err := p.watermarks.Set(ctx, batch.account, newest); err != nil {
		return &CycleError{FailurePersistence, "advance watermark", err}
	}
	report.Advanced[batch.account] = newest
	return nil
}

func (p *Poller) purgeOldRecords(ctx context.Context, startedAt time.Time) {
	if p.purger == nil || p.opts.RecordTTL <= 0 || ctx.Err() != nil {
		return
	}
	n, err := p.purger.Purge(ctx, startedAt.Add(-p.opts.RecordTTL))
	if err != nil {
		p.log.Sugar().Warnw("Failed to purge delivery records", "err", err)
		return
	}
	if n > 0 {
		p.log.Sugar().Infof("Purged %d old delivery records", n)
	}
}

func (p *Poller) logReport(r *CycleReport) {
	if r.Skipped {
		p.log.Sugar().Info("No accounts configured, skipped poll")
		return
	}

	args := []any{"fetched", r.Fetched, "elapsed_msecs", int(r.FinishedAt.Sub(r.StartedAt).Milliseconds())}
	if r.Delivered != 0 {
		args = append(args, "delivered", r.Delivered)
	}
	if r.Failed != 0 {
		args = append(args, "failed", r.Failed)
	}
	if len(r.Bootstrapped) != 0 {
		args = append(args, "bootstrapped", r.Bootstrapped)
	}
	if r.Invalid != 0 {
		args = append(args, "invalid", r.Invalid)
	}
	p.log.Sugar().Infow(fmt.Sprintf("Polled %d accounts", r.Accounts), args...)
}

func normalizeAccounts(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		a = models.NormalizeAccount(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
