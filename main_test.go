package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestAppGraph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(appOptions()))
}

type recordedRequest struct {
	Method string
	Path   string
	User   string
}

func newTestServer(t *testing.T, responses map[string]string) *[]recordedRequest {
	t.Helper()
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		reqs = append(reqs, recordedRequest{r.Method, r.URL.Path, user})

		if resp, ok := responses[r.Method+" "+r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) {
		return &apiClient{baseURL: srv.URL, user: "admin", pass: "secret"}, nil
	}
	t.Cleanup(func() { newAPIClient = orig })

	return &reqs
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	reqs := newTestServer(t, map[string]string{
		"GET /api/status": `{"poller":{"state":"idle","healthy":true}}`,
	})

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, `"healthy": true`)
	require.Len(t, *reqs, 1)
	assert.Equal(t, "admin", (*reqs)[0].User)
}

func TestTriggerCommand(t *testing.T) {
	reqs := newTestServer(t, map[string]string{
		"POST /api/poll": `{"queued":true}`,
	})

	out, err := execute(t, "trigger")

	require.NoError(t, err)
	assert.Contains(t, out, "Poll cycle requested")
	assert.Equal(t, http.MethodPost, (*reqs)[0].Method)
}

func TestReplayCommand(t *testing.T) {
	newTestServer(t, map[string]string{
		"POST /api/deliveries/r1/replay": `{"sink":"webhook","status":"sent","record_id":"r2"}`,
		"POST /api/deliveries/r3/replay": `{"sink":"webhook","status":"failed","error":"timeout","record_id":"r4"}`,
	})

	out, err := execute(t, "replay", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "record r2")

	_, err = execute(t, "replay", "r3")
	assert.ErrorContains(t, err, "timeout")

	_, err = execute(t, "replay", "missing")
	assert.Error(t, err)
}
