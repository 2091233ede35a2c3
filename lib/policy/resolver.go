package policy

import (
	"context"

	"github.com/fiffu/postwatch/lib/models"
	"go.uber.org/zap"
)

type Store interface {
	Get(ctx context.Context, account string) (models.DeliveryPolicy, bool, error)
}

// Resolver looks up how an account's items should be delivered. It never
// fails: a missing or unreadable policy resolves to the default.
type Resolver struct {
	store Store
	log   *zap.Logger
}

func NewResolver(store Store, log *zap.Logger) *Resolver {
	return &Resolver{store, log}
}

func (r *Resolver) Resolve(ctx context.Context, account string) models.DeliveryPolicy {
	p, ok, err := r.store.Get(ctx, account)
	if err != nil {
		r.log.Sugar().Warnw("Failed to read delivery policy, using default", "account", account, "err", err)
		return models.DefaultPolicy(account)
	}
	if !ok {
		return models.DefaultPolicy(account)
	}

	p.Account = account
	if !p.Mode.Valid() {
		p.Mode = models.ModeImmediate
	}
	if p.Channel == "" {
		p.Channel = models.DefaultChannel
	}
	return p
}
