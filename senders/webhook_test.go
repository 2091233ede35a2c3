package senders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fiffu/postwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() *Event {
	return NewEvent(&models.Item{ID: "103", Account: "acct1", Author: "acct1"}, models.DefaultPolicy("acct1"), time.Now())
}

func TestWebhookSinkPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "tok", http.DefaultTransport)
	require.NoError(t, sink.Send(context.Background(), testEvent()))

	assert.Equal(t, "new_tweet", got["event"])
	assert.Equal(t, "103", got["tweet"].(map[string]any)["id"])
}

func TestWebhookSinkFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "", http.DefaultTransport)
	assert.Error(t, sink.Send(context.Background(), testEvent()))
}

func TestWebhookSinkHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sink := NewWebhookSink(srv.URL, "", http.DefaultTransport)
	assert.Error(t, sink.Send(ctx, testEvent()))
}
