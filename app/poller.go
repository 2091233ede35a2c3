package app

import (
	"github.com/fiffu/postwatch/config"
	"github.com/fiffu/postwatch/lib"
	"github.com/fiffu/postwatch/lib/dispatch"
	"github.com/fiffu/postwatch/lib/fetcher"
	"github.com/fiffu/postwatch/lib/policy"
	"github.com/fiffu/postwatch/lib/poller"
	"github.com/fiffu/postwatch/lib/settingsfile"
	"github.com/fiffu/postwatch/lib/store"
	"github.com/fiffu/postwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewResolver(policies *store.Policies, log *zap.Logger) *policy.Resolver {
	return policy.NewResolver(policies, log)
}

func NewDispatcher(cfg *config.Config, log *zap.Logger, sinks senders.Registry, deliveries *store.Deliveries) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(sinks, deliveries, log, cfg.Delivery.SinkTimeout)
}

// NewPoller only builds the poller; lib.Service starts it once the settings
// have been seeded.
func NewPoller(
	cfg *config.Config,
	log *zap.Logger,
	f fetcher.Fetcher,
	watermarks *store.Watermarks,
	settings *store.Settings,
	resolver *policy.Resolver,
	dispatcher *dispatch.Dispatcher,
	deliveries *store.Deliveries,
) *poller.Poller {
	return poller.New(log, f, watermarks, settings, resolver, dispatcher, deliveries, poller.Options{
		PerAccountLimit: cfg.Fetch.PerAccountLimit,
		FetchTimeout:    cfg.Fetch.Timeout,
		DefaultInterval: cfg.PollInterval,
		RecordTTL:       cfg.Delivery.LogTTL,
	})
}

// NewSettingsWatcher returns nil when SETTINGS_FILE is not set.
func NewSettingsWatcher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *settingsfile.Watcher {
	if cfg.SettingsFile == "" {
		return nil
	}
	w := settingsfile.NewWatcher(cfg.SettingsFile, svc, log)
	lc.Append(fx.Hook{
		OnStart: w.Start,
		OnStop:  w.Stop,
	})
	return w
}
