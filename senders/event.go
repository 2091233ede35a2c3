package senders

import (
	"encoding/json"
	"time"

	"github.com/fiffu/postwatch/lib/models"
)

const (
	EventNewTweet = "new_tweet"

	// Millisecond precision with a literal Z, as consumers of the webhook expect.
	isoLayout = "2006-01-02T15:04:05.000Z"
)

// Event is the payload every sink receives. Its JSON form is the webhook wire
// contract and must not change shape.
type Event struct {
	Event        string       `json:"event"`
	Timestamp    string       `json:"timestamp"`
	HandleConfig HandleConfig `json:"handleConfig"`
	Tweet        Tweet        `json:"tweet"`

	account string
}

type HandleConfig struct {
	Mode    string `json:"mode"`
	Prompt  string `json:"prompt"`
	Channel string `json:"channel"`
}

type Tweet struct {
	ID             string       `json:"id"`
	URL            string       `json:"url"`
	Text           string       `json:"text"`
	CreatedAt      string       `json:"createdAt"`
	Author         string       `json:"author"`
	AuthorName     string       `json:"authorName"`
	ReplyCount     int          `json:"replyCount"`
	RetweetCount   int          `json:"retweetCount"`
	LikeCount      int          `json:"likeCount"`
	QuoteCount     int          `json:"quoteCount"`
	IsRetweet      bool         `json:"isRetweet"`
	IsQuote        bool         `json:"isQuote"`
	IsReply        bool         `json:"isReply"`
	InReplyToID    *string      `json:"inReplyToId"`
	InReplyToUser  *string      `json:"inReplyToUser"`
	ConversationID *string      `json:"conversationId"`
	QuotedTweet    *QuotedTweet `json:"quotedTweet"`
}

type QuotedTweet struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Text   string `json:"text"`
	Author string `json:"author"`
}

func NewEvent(item *models.Item, policy models.DeliveryPolicy, now time.Time) *Event {
	evt := &Event{
		Event:     EventNewTweet,
		Timestamp: formatISO(now),
		HandleConfig: HandleConfig{
			Mode:    wireMode(policy.Mode),
			Prompt:  policy.Instructions,
			Channel: policy.Channel,
		},
		Tweet: Tweet{
			ID:             item.ID,
			URL:            item.URL,
			Text:           item.Text,
			CreatedAt:      formatISO(item.CreatedAt),
			Author:         item.Author,
			AuthorName:     item.AuthorName,
			ReplyCount:     item.ReplyCount,
			RetweetCount:   item.RetweetCount,
			LikeCount:      item.LikeCount,
			QuoteCount:     item.QuoteCount,
			IsRetweet:      item.IsRetweet,
			IsQuote:        item.IsQuote,
			IsReply:        item.IsReply,
			InReplyToID:    nullable(item.InReplyToID),
			InReplyToUser:  nullable(item.InReplyToUser),
			ConversationID: nullable(item.ConversationID),
		},
		account: item.Account,
	}
	if evt.HandleConfig.Channel == "" {
		evt.HandleConfig.Channel = models.DefaultChannel
	}
	if q := item.Quoted; q != nil {
		evt.Tweet.QuotedTweet = &QuotedTweet{ID: q.ID, URL: q.URL, Text: q.Text, Author: q.Author}
	}
	return evt
}

// Account is the monitored account the event was produced for. Not part of
// the wire format.
func (e *Event) Account() string {
	if e.account != "" {
		return e.account
	}
	return models.NormalizeAccount(e.Tweet.Author)
}

func wireMode(m models.DeliveryMode) string {
	if m == models.ModeBatched {
		return "next-heartbeat"
	}
	return "now"
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DecodeEvent restores an event previously serialized for delivery, e.g. from
// the delivery log.
func DecodeEvent(payload []byte, account string) (*Event, error) {
	evt := &Event{}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, err
	}
	evt.account = account
	return evt, nil
}
