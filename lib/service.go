package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fiffu/postwatch/config"
	"github.com/fiffu/postwatch/lib/dispatch"
	"github.com/fiffu/postwatch/lib/merge"
	"github.com/fiffu/postwatch/lib/models"
	"github.com/fiffu/postwatch/lib/poller"
	"github.com/fiffu/postwatch/lib/settingsfile"
	"github.com/fiffu/postwatch/lib/store"
	"github.com/fiffu/postwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidSettings = errors.New("invalid settings")

const (
	MinInterval = 30 * time.Second
	MaxInterval = 24 * time.Hour

	statusDeliveryLimit = 10
)

type Service struct {
	cfg *config.Config
	log *zap.Logger

	settings   *store.Settings
	policies   *store.Policies
	watermarks *store.Watermarks
	deliveries *store.Deliveries

	poller     *poller.Poller
	dispatcher *dispatch.Dispatcher
	sinks      senders.Registry
}

func NewService(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	settings *store.Settings,
	policies *store.Policies,
	watermarks *store.Watermarks,
	deliveries *store.Deliveries,
	poll *poller.Poller,
	dispatcher *dispatch.Dispatcher,
	sinks senders.Registry,
) *Service {
	svc := &Service{cfg, log, settings, policies, watermarks, deliveries, poll, dispatcher, sinks}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := svc.SeedSettings(ctx); err != nil {
				return err
			}
			// The loop outlives the start hook, so it must not inherit its context.
			svc.poller.Start(context.Background())
			return nil
		},
		OnStop: svc.poller.Stop,
	})
	return svc
}

// SettingsUpdate replaces the monitor settings as a whole.
type SettingsUpdate struct {
	Accounts        []string `json:"accounts"`
	IntervalSeconds int64    `json:"intervalSeconds"`
}

// SeedSettings stores the settings from the environment the first time the
// service starts on an empty database.
func (svc *Service) SeedSettings(ctx context.Context) error {
	_, ok, err := svc.settings.Load(ctx)
	if err != nil || ok {
		return err
	}

	update := SettingsUpdate{
		Accounts:        svc.cfg.Accounts,
		IntervalSeconds: int64(svc.cfg.PollInterval / time.Second),
	}
	settings, err := validateSettings(update)
	if err != nil {
		return fmt.Errorf("seeding settings from environment: %w", err)
	}
	if err := svc.settings.Save(ctx, settings); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Seeded monitor settings", "accounts", settings.Accounts, "interval", settings.Interval())
	return nil
}

func (svc *Service) GetSettings(ctx context.Context) (models.MonitorSettings, error) {
	settings, ok, err := svc.settings.Load(ctx)
	if err != nil {
		return models.MonitorSettings{}, err
	}
	if !ok {
		settings.Accounts = models.AccountList{}
		settings.IntervalSeconds = int64(svc.cfg.PollInterval / time.Second)
	}
	return settings, nil
}

func (svc *Service) UpdateSettings(ctx context.Context, update SettingsUpdate) (models.MonitorSettings, error) {
	settings, err := validateSettings(update)
	if err != nil {
		return models.MonitorSettings{}, err
	}
	if err := svc.settings.Save(ctx, settings); err != nil {
		return models.MonitorSettings{}, err
	}

	svc.poller.Reload()
	svc.log.Sugar().Infow("Updated monitor settings", "accounts", settings.Accounts, "interval", settings.Interval())
	return svc.GetSettings(ctx)
}

// PatchSettings deep-merges patch into the current settings and stores the
// result.
func (svc *Service) PatchSettings(ctx context.Context, patch map[string]any) (models.MonitorSettings, error) {
	current, err := svc.GetSettings(ctx)
	if err != nil {
		return models.MonitorSettings{}, err
	}

	base, err := toMap(SettingsUpdate{Accounts: current.Accounts, IntervalSeconds: current.IntervalSeconds})
	if err != nil {
		return models.MonitorSettings{}, err
	}
	merged, err := json.Marshal(merge.Merge(base, patch))
	if err != nil {
		return models.MonitorSettings{}, err
	}

	var update SettingsUpdate
	if err := json.Unmarshal(merged, &update); err != nil {
		return models.MonitorSettings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return svc.UpdateSettings(ctx, update)
}

// ApplySettingsFile applies a settings file. Nothing is written unless the
// whole file is valid.
func (svc *Service) ApplySettingsFile(ctx context.Context, f *settingsfile.File) error {
	current, err := svc.GetSettings(ctx)
	if err != nil {
		return err
	}
	update := SettingsUpdate{Accounts: current.Accounts, IntervalSeconds: current.IntervalSeconds}
	if f.Accounts != nil {
		update.Accounts = f.Accounts
	}
	if f.IntervalSeconds != 0 {
		update.IntervalSeconds = f.IntervalSeconds
	}
	if _, err := validateSettings(update); err != nil {
		return err
	}

	policies := make([]models.DeliveryPolicy, len(f.Policies))
	for i, p := range f.Policies {
		if policies[i], err = validatePolicy(p); err != nil {
			return err
		}
	}

	for _, p := range policies {
		if err := svc.policies.Put(ctx, p); err != nil {
			return err
		}
	}
	_, err = svc.UpdateSettings(ctx, update)
	return err
}

func (svc *Service) GetPolicy(ctx context.Context, account string) (models.DeliveryPolicy, error) {
	account, err := validateAccount(account)
	if err != nil {
		return models.DeliveryPolicy{}, err
	}
	p, ok, err := svc.policies.Get(ctx, account)
	if err != nil {
		return models.DeliveryPolicy{}, err
	}
	if !ok {
		return models.DefaultPolicy(account), nil
	}
	return p, nil
}

func (svc *Service) ListPolicies(ctx context.Context) ([]models.DeliveryPolicy, error) {
	return svc.policies.All(ctx)
}

func (svc *Service) PutPolicy(ctx context.Context, p models.DeliveryPolicy) (models.DeliveryPolicy, error) {
	p, err := validatePolicy(p)
	if err != nil {
		return models.DeliveryPolicy{}, err
	}
	if err := svc.policies.Put(ctx, p); err != nil {
		return models.DeliveryPolicy{}, err
	}
	svc.log.Sugar().Infow("Updated delivery policy", "account", p.Account, "mode", p.Mode, "channel", p.Channel)
	return p, nil
}

// DeletePolicy reverts an account to the default policy.
func (svc *Service) DeletePolicy(ctx context.Context, account string) error {
	account, err := validateAccount(account)
	if err != nil {
		return err
	}
	return svc.policies.Delete(ctx, account)
}

// TriggerPoll asks for a cycle now. It reports false when one was already
// requested and not yet started.
func (svc *Service) TriggerPoll() bool {
	return svc.poller.Trigger()
}

type StatusReport struct {
	Poller           poller.Status          `json:"poller"`
	Settings         models.MonitorSettings `json:"settings"`
	Sinks            []string               `json:"sinks"`
	Watermarks       models.Watermarks      `json:"watermarks"`
	RecentDeliveries models.DeliveryRecords `json:"recent_deliveries"`
	StoreErrors      []string               `json:"store_errors,omitempty"`
}

// Status always carries the poller block. Sections read from the store are
// left empty when the read fails, and the failure is listed in StoreErrors.
func (svc *Service) Status(ctx context.Context) *StatusReport {
	report := &StatusReport{
		Poller: svc.poller.Status(),
		Sinks:  svc.sinks.Kinds(),
	}
	storeFailed := func(section string, err error) {
		svc.log.Sugar().Warnw("Status section unavailable", "section", section, "err", err)
		report.StoreErrors = append(report.StoreErrors, fmt.Sprintf("%s: %v", section, err))
	}

	var err error
	if report.Settings, err = svc.GetSettings(ctx); err != nil {
		storeFailed("settings", err)
	}
	if report.Watermarks, err = svc.watermarks.All(ctx); err != nil {
		storeFailed("watermarks", err)
	}
	if report.RecentDeliveries, err = svc.deliveries.Recent(ctx, statusDeliveryLimit); err != nil {
		storeFailed("recent_deliveries", err)
	}
	return report
}

func (svc *Service) PollerStatus() poller.Status {
	return svc.poller.Status()
}

func (svc *Service) Deliveries(ctx context.Context, limit int) (models.DeliveryRecords, error) {
	return svc.deliveries.Recent(ctx, limit)
}

// Replay sends a logged delivery again. The watermark is not consulted.
func (svc *Service) Replay(ctx context.Context, recordID string) (dispatch.SinkResult, error) {
	rec, err := svc.deliveries.Find(ctx, recordID)
	if err != nil {
		return dispatch.SinkResult{}, err
	}
	return svc.dispatcher.Replay(ctx, rec)
}

func validateSettings(update SettingsUpdate) (models.MonitorSettings, error) {
	accounts := models.AccountList{}
	seen := map[string]bool{}
	for _, a := range update.Accounts {
		account, err := validateAccount(a)
		if err != nil {
			return models.MonitorSettings{}, err
		}
		if !seen[account] {
			seen[account] = true
			accounts = append(accounts, account)
		}
	}

	interval := time.Duration(update.IntervalSeconds) * time.Second
	if interval < MinInterval || interval > MaxInterval {
		return models.MonitorSettings{}, fmt.Errorf("%w: interval must be between %s and %s, got %ds",
			ErrInvalidSettings, MinInterval, MaxInterval, update.IntervalSeconds)
	}

	return models.MonitorSettings{Accounts: accounts, IntervalSeconds: update.IntervalSeconds}, nil
}

func validateAccount(account string) (string, error) {
	normalized := models.NormalizeAccount(account)
	if !models.ValidAccount(normalized) {
		return "", fmt.Errorf("%w: %q is not a valid account handle", ErrInvalidSettings, account)
	}
	return normalized, nil
}

func validatePolicy(p models.DeliveryPolicy) (models.DeliveryPolicy, error) {
	account, err := validateAccount(p.Account)
	if err != nil {
		return models.DeliveryPolicy{}, err
	}
	p.Account = account

	if p.Mode == "" {
		p.Mode = models.ModeImmediate
	}
	if !p.Mode.Valid() {
		return models.DeliveryPolicy{}, fmt.Errorf("%w: mode must be %q or %q, got %q",
			ErrInvalidSettings, models.ModeImmediate, models.ModeBatched, p.Mode)
	}
	if p.Channel == "" {
		p.Channel = models.DefaultChannel
	}
	return p, nil
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	return m, json.Unmarshal(b, &m)
}
