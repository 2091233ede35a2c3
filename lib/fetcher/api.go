package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/postwatch/lib/models"
)

// APIFetcher reads recent posts from a JSON search API that accepts a set of
// accounts in one request.
type APIFetcher struct {
	baseURL   string
	token     string
	transport http.RoundTripper
}

func NewAPIFetcher(baseURL, token string, transport http.RoundTripper) *APIFetcher {
	return &APIFetcher{baseURL, token, transport}
}

type apiResponse struct {
	Tweets []apiTweet `json:"tweets"`
}

type apiTweet struct {
	ID             string  `json:"id"`
	URL            string  `json:"url"`
	Text           string  `json:"text"`
	CreatedAt      string  `json:"createdAt"`
	Author         string  `json:"author"`
	AuthorName     string  `json:"authorName"`
	ReplyCount     int     `json:"replyCount"`
	RetweetCount   int     `json:"retweetCount"`
	LikeCount      int     `json:"likeCount"`
	QuoteCount     int     `json:"quoteCount"`
	IsRetweet      bool    `json:"isRetweet"`
	IsQuote        bool    `json:"isQuote"`
	IsReply        bool    `json:"isReply"`
	InReplyToID    *string `json:"inReplyToId"`
	InReplyToUser  *string `json:"inReplyToUser"`
	ConversationID *string `json:"conversationId"`
	QuotedTweet    *struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Text   string `json:"text"`
		Author string `json:"author"`
	} `json:"quotedTweet"`
}

func (f *APIFetcher) FetchLatest(ctx context.Context, accounts []string, perAccountLimit int) (models.Items, error) {
	var resp apiResponse
	builder := requests.URL(f.baseURL+"/tweets").
		Transport(f.transport).
		Param("accounts", strings.Join(accounts, ",")).
		Param("limit", strconv.Itoa(perAccountLimit)).
		ToJSON(&resp)
	if f.token != "" {
		builder = builder.Bearer(f.token)
	}
	if err := builder.Fetch(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	items := make(models.Items, 0, len(resp.Tweets))
	for _, t := range resp.Tweets {
		items = append(items, t.toItem())
	}
	return items, nil
}

func (t apiTweet) toItem() models.Item {
	item := models.Item{
		ID:             t.ID,
		Account:        models.NormalizeAccount(t.Author),
		Author:         t.Author,
		AuthorName:     t.AuthorName,
		Text:           t.Text,
		URL:            t.URL,
		ReplyCount:     t.ReplyCount,
		RetweetCount:   t.RetweetCount,
		LikeCount:      t.LikeCount,
		QuoteCount:     t.QuoteCount,
		IsRetweet:      t.IsRetweet,
		IsQuote:        t.IsQuote,
		IsReply:        t.IsReply,
		InReplyToID:    deref(t.InReplyToID),
		InReplyToUser:  deref(t.InReplyToUser),
		ConversationID: deref(t.ConversationID),
	}
	if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		item.CreatedAt = ts.UTC()
	}
	if q := t.QuotedTweet; q != nil {
		item.Quoted = &models.QuotedItem{ID: q.ID, URL: q.URL, Text: q.Text, Author: q.Author}
	}
	return item
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
