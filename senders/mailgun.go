package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/postwatch/senders/email"
	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) Kind() string { return KindEmail }

func (e *mailgunSender) Send(ctx context.Context, evt *Event) error {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.SetClient(&http.Client{Transport: e.transport})

	format := &email.TweetEmailFormat{
		Account:    evt.Account(),
		Author:     evt.Tweet.Author,
		AuthorName: evt.Tweet.AuthorName,
		Text:       evt.Tweet.Text,
		URL:        evt.Tweet.URL,
		CreatedAt:  evt.Tweet.CreatedAt,
		Prompt:     evt.HandleConfig.Prompt,
	}

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, format.Subject(), "", e.cfg.Mailgun.Recipient)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(format.Body())

	_, _, err := mg.Send(ctx, message)
	return err
}
