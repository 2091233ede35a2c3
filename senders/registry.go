package senders

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/fiffu/postwatch/config"
	"go.uber.org/zap"
)

const (
	KindWebhook = "webhook"
	KindProcess = "process"
	KindEmail   = "email"
)

// Sink is one delivery destination. Send must honour ctx cancellation.
type Sink interface {
	Kind() string
	Send(ctx context.Context, evt *Event) error
}

type Registry map[string]Sink

// NewSinkRegistry enables each sink whose settings are present.
func NewSinkRegistry(log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	reg := Registry{}

	if cfg.Delivery.WebhookURL != "" {
		reg.Add(NewWebhookSink(cfg.Delivery.WebhookURL, cfg.Delivery.WebhookToken, transport))
	}
	if argv := strings.Fields(cfg.Delivery.AgentCommand); len(argv) > 0 {
		reg.Add(NewProcessSink(argv, log))
	}
	if cfg.MailgunEnabled() {
		reg.Add(&mailgunSender{base})
	}

	if len(reg) == 0 {
		log.Sugar().Warn("No delivery sinks configured; new items will only be logged")
	} else {
		log.Sugar().Infow("Delivery sinks enabled", "sinks", reg.Kinds())
	}
	return reg
}

func (r Registry) Add(s Sink) {
	r[s.Kind()] = s
}

// Kinds lists the registered sink kinds in a stable order.
func (r Registry) Kinds() []string {
	kinds := make([]string, 0, len(r))
	for k := range r {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
