// Package dispatch fans a new item out to every configured sink and keeps
// the delivery log. Nothing in here returns an error to the poll loop: every
// failure ends up as a failed result and a failed record.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fiffu/postwatch/lib/models"
	"github.com/fiffu/postwatch/senders"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const logWriteTimeout = 5 * time.Second

var ErrUnknownSink = errors.New("sink is not configured")

type DeliveryLog interface {
	Append(ctx context.Context, rec *models.DeliveryRecord) error
}

type Dispatcher struct {
	sinks   senders.Registry
	records DeliveryLog
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewDispatcher(sinks senders.Registry, records DeliveryLog, log *zap.Logger, sinkTimeout time.Duration) *Dispatcher {
	if sinkTimeout <= 0 {
		sinkTimeout = 15 * time.Second
	}
	return &Dispatcher{sinks, records, log, sinkTimeout, func() time.Time { return time.Now().UTC() }}
}

type SinkResult struct {
	Sink     string
	Status   models.DeliveryStatus
	Err      error
	RecordID string
}

type Outcome struct {
	ItemID  string
	Account string
	Results []SinkResult
}

func (o Outcome) Failed() int {
	n := 0
	for _, r := range o.Results {
		if r.Status == models.StatusFailed {
			n++
		}
	}
	return n
}

// Deliver sends item to all sinks concurrently and returns once each of them
// has finished or hit its timeout.
func (d *Dispatcher) Deliver(ctx context.Context, item *models.Item, policy models.DeliveryPolicy) Outcome {
	evt := senders.NewEvent(item, policy, d.now())
	out := Outcome{ItemID: item.ID, Account: item.Account}

	payload, err := json.Marshal(evt)
	if err != nil {
		d.log.Sugar().Errorw("Failed to encode event", "item_id", item.ID, "err", err)
	}

	kinds := d.sinks.Kinds()
	if len(kinds) == 0 {
		d.log.Sugar().Infow("New item (no sinks configured)", "account", item.Account, "item_id", item.ID, "url", item.URL)
		return out
	}

	out.Results = make([]SinkResult, len(kinds))
	var g errgroup.Group
	for i, kind := range kinds {
		i := i
		sink := d.sinks[kind]
		g.Go(func() error {
			out.Results[i] = d.send(ctx, sink, evt)
			return nil
		})
	}
	g.Wait()

	for i := range out.Results {
		out.Results[i].RecordID = d.record(ctx, item.ID, item.Account, string(payload), out.Results[i])
	}

	d.log.Sugar().Infow("Delivered item",
		"account", item.Account, "item_id", item.ID,
		"sinks", len(out.Results), "failed", out.Failed(),
	)
	return out
}

// Replay sends a logged payload again to the sink it was originally meant
// for, and logs the new attempt.
func (d *Dispatcher) Replay(ctx context.Context, rec *models.DeliveryRecord) (SinkResult, error) {
	sink, ok := d.sinks[rec.Sink]
	if !ok {
		return SinkResult{}, fmt.Errorf("%w: %s", ErrUnknownSink, rec.Sink)
	}
	evt, err := senders.DecodeEvent([]byte(rec.Payload), rec.Account)
	if err != nil {
		return SinkResult{}, fmt.Errorf("decoding logged payload: %w", err)
	}

	res := d.send(ctx, sink, evt)
	res.RecordID = d.record(ctx, rec.ItemID, rec.Account, rec.Payload, res)

	d.log.Sugar().Infow("Replayed delivery",
		"record_id", rec.ID, "item_id", rec.ItemID, "sink", rec.Sink, "status", res.Status,
	)
	return res, nil
}

func (d *Dispatcher) send(ctx context.Context, sink senders.Sink, evt *senders.Event) SinkResult {
	res := SinkResult{Sink: sink.Kind(), Status: models.StatusSent}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// A sink that ignores ctx must still not hold up the barrier.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sink %s panicked: %v", sink.Kind(), r)
			}
		}()
		done <- sink.Send(ctx, evt)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		res.Status = models.StatusFailed
		res.Err = err
		d.log.Sugar().Warnw("Delivery failed", "sink", res.Sink, "item_id", evt.Tweet.ID, "err", err)
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, itemID, account, payload string, res SinkResult) string {
	rec := &models.DeliveryRecord{
		ItemID:      itemID,
		Account:     account,
		Sink:        res.Sink,
		Status:      res.Status,
		AttemptedAt: d.now(),
		Payload:     payload,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	// The record is written even when the cycle is being cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if err := d.records.Append(ctx, rec); err != nil {
		d.log.Sugar().Warnw("Failed to append delivery record", "item_id", itemID, "sink", res.Sink, "err", err)
		return ""
	}
	return rec.ID
}
