package senders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProcessSink hands the event to an agent command: the event JSON goes to
// stdin and the delivery hints go to the environment. A non-zero exit is a
// failure.
type ProcessSink struct {
	argv []string
	log  *zap.Logger
}

func NewProcessSink(argv []string, log *zap.Logger) *ProcessSink {
	return &ProcessSink{argv, log}
}

func (s *ProcessSink) Kind() string { return KindProcess }

func (s *ProcessSink) Send(ctx context.Context, evt *Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(),
		"POSTWATCH_MODE="+evt.HandleConfig.Mode,
		"POSTWATCH_CHANNEL="+evt.HandleConfig.Channel,
		"POSTWATCH_PROMPT="+evt.HandleConfig.Prompt,
		"POSTWATCH_TWEET_ID="+evt.Tweet.ID,
		"POSTWATCH_TWEET_URL="+evt.Tweet.URL,
	)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", s.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		s.log.Sugar().Debugw("Agent command output", "tweet_id", evt.Tweet.ID, "output", out)
	}
	return nil
}
