package senders

import (
	"context"
	"net/http"

	"github.com/carlmjohnson/requests"
)

// WebhookSink posts the event as JSON. Any non-2xx answer is a failure.
type WebhookSink struct {
	url       string
	token     string
	transport http.RoundTripper
}

func NewWebhookSink(url, token string, transport http.RoundTripper) *WebhookSink {
	return &WebhookSink{url, token, transport}
}

func (s *WebhookSink) Kind() string { return KindWebhook }

func (s *WebhookSink) Send(ctx context.Context, evt *Event) error {
	builder := requests.URL(s.url).
		Transport(s.transport).
		Post().
		BodyJSON(evt)
	if s.token != "" {
		builder = builder.Bearer(s.token)
	}
	return builder.Fetch(ctx)
}
