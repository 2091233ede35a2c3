// Package fetcher adapts external content sources to the poller. Adapters
// promise nothing about ordering, duplicates or extra accounts in a batch.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fiffu/postwatch/config"
	"github.com/fiffu/postwatch/lib/models"
	"go.uber.org/zap"
)

var ErrFetch = errors.New("fetch failed")

type Fetcher interface {
	FetchLatest(ctx context.Context, accounts []string, perAccountLimit int) (models.Items, error)
}

// New picks the adapter named by FETCH_SOURCE.
func New(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) (Fetcher, error) {
	base := strings.TrimRight(cfg.Fetch.BaseURL, "/")
	switch cfg.Fetch.Source {
	case "api", "":
		return NewAPIFetcher(base, cfg.Fetch.Token, transport), nil
	case "html":
		return NewTimelineFetcher(base, transport, log), nil
	default:
		return nil, fmt.Errorf("unknown FETCH_SOURCE %q", cfg.Fetch.Source)
	}
}
