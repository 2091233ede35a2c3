package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/postwatch/config"
	"github.com/spf13/cobra"
)

const clientTimeout = 30 * time.Second

// apiClient talks to a running `postwatch serve`.
type apiClient struct {
	baseURL    string
	user, pass string
	transport  http.RoundTripper
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	c := &apiClient{baseURL: strings.TrimRight(cfg.APIURL, "/")}
	c.user, c.pass, _ = cfg.FirstCred()
	return c, nil
}

func (c *apiClient) request(path string) *requests.Builder {
	rb := requests.URL(c.baseURL + path)
	if c.user != "" {
		rb = rb.BasicAuth(c.user, c.pass)
	}
	if c.transport != nil {
		rb = rb.Transport(c.transport)
	}
	return rb
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	err := c.request(path).ToJSON(out).Fetch(ctx)
	return c.wrap(err)
}

func (c *apiClient) post(ctx context.Context, path string, out any) error {
	err := c.request(path).Post().ToJSON(out).Fetch(ctx)
	return c.wrap(err)
}

func (c *apiClient) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("calling %s (is postwatch serve running?): %w", c.baseURL, err)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show poller health, watermarks and recent deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
		defer cancel()

		var status map[string]any
		if err := client.get(ctx, "/api/status", &status); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), status)
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run a poll cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
		defer cancel()

		var res struct {
			Queued bool `json:"queued"`
		}
		if err := client.post(ctx, "/api/poll", &res); err != nil {
			return err
		}
		if res.Queued {
			fmt.Fprintln(cmd.OutOrStdout(), "Poll cycle requested")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "A poll cycle was already requested")
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <record-id>",
	Short: "Send a logged delivery again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
		defer cancel()

		var res struct {
			Sink     string `json:"sink"`
			Status   string `json:"status"`
			Error    string `json:"error"`
			RecordID string `json:"record_id"`
		}
		if err := client.post(ctx, "/api/deliveries/"+args[0]+"/replay", &res); err != nil {
			return err
		}
		if res.Error != "" {
			return fmt.Errorf("replay to %s failed: %s (record %s)", res.Sink, res.Error, res.RecordID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Replayed to %s: %s (record %s)\n", res.Sink, res.Status, res.RecordID)
		return nil
	},
}
