package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIFetcherFetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets", r.URL.Path)
		assert.Equal(t, "alice,bob", r.URL.Query().Get("accounts"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tweets": [
			{"id": "101", "url": "https://x.com/Alice/status/101", "text": "hello", "createdAt": "2024-03-01T10:00:00.000Z",
			 "author": "Alice", "authorName": "Alice A", "likeCount": 3, "isReply": true,
			 "inReplyToId": "99", "inReplyToUser": "bob", "conversationId": "99",
			 "quotedTweet": {"id": "50", "url": "https://x.com/carol/status/50", "text": "quoted", "author": "carol"}},
			{"id": "7", "text": "no extras", "author": "bob"}
		]}`))
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, "s3cret", http.DefaultTransport)
	items, err := f.FetchLatest(context.Background(), []string{"alice", "bob"}, 5)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "101", first.ID)
	assert.Equal(t, "alice", first.Account)
	assert.Equal(t, "Alice", first.Author)
	assert.Equal(t, 3, first.LikeCount)
	assert.True(t, first.IsReply)
	assert.Equal(t, "99", first.InReplyToID)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), first.CreatedAt)
	require.NotNil(t, first.Quoted)
	assert.Equal(t, "carol", first.Quoted.Author)

	assert.Nil(t, items[1].Quoted)
	assert.Empty(t, items[1].InReplyToID)
}

func TestAPIFetcherWrapsUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, "", http.DefaultTransport)
	_, err := f.FetchLatest(context.Background(), []string{"alice"}, 5)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestAPIFetcherRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, "", http.DefaultTransport)
	_, err := f.FetchLatest(context.Background(), []string{"alice"}, 5)
	assert.ErrorIs(t, err, ErrFetch)
}
