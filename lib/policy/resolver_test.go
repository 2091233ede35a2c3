package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/fiffu/postwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	getFn func(ctx context.Context, account string) (models.DeliveryPolicy, bool, error)
}

func (f *fakeStore) Get(ctx context.Context, account string) (models.DeliveryPolicy, bool, error) {
	return f.getFn(ctx, account)
}

func TestResolveDefaultsWhenAbsent(t *testing.T) {
	r := NewResolver(&fakeStore{
		getFn: func(context.Context, string) (models.DeliveryPolicy, bool, error) {
			return models.DeliveryPolicy{}, false, nil
		},
	}, zaptest.NewLogger(t))

	got := r.Resolve(context.Background(), "acct1")
	assert.Equal(t, models.DeliveryPolicy{Account: "acct1", Mode: models.ModeImmediate, Channel: "default"}, got)
}

func TestResolveDefaultsOnStoreError(t *testing.T) {
	r := NewResolver(&fakeStore{
		getFn: func(context.Context, string) (models.DeliveryPolicy, bool, error) {
			return models.DeliveryPolicy{}, false, errors.New("disk on fire")
		},
	}, zaptest.NewLogger(t))

	got := r.Resolve(context.Background(), "acct1")
	assert.Equal(t, models.DefaultPolicy("acct1"), got)
}

func TestResolveReturnsStoredPolicy(t *testing.T) {
	r := NewResolver(&fakeStore{
		getFn: func(_ context.Context, account string) (models.DeliveryPolicy, bool, error) {
			return models.DeliveryPolicy{Account: account, Mode: models.ModeBatched, Instructions: "summarize"}, true, nil
		},
	}, zaptest.NewLogger(t))

	got := r.Resolve(context.Background(), "acct1")
	assert.Equal(t, models.ModeBatched, got.Mode)
	assert.Equal(t, "summarize", got.Instructions)
	assert.Equal(t, models.DefaultChannel, got.Channel)
}
