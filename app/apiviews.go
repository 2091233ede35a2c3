package app

import (
	"time"

	"github.com/fiffu/postwatch/lib"
	"github.com/fiffu/postwatch/lib/dispatch"
	"github.com/fiffu/postwatch/lib/models"
	"github.com/fiffu/postwatch/lib/poller"
)

type SettingsView struct {
	Accounts        []string `json:"accounts"`
	IntervalSeconds int64    `json:"intervalSeconds"`
	UpdatedAt       *string  `json:"updated_at"`
}

type PolicyView struct {
	Account      string `json:"account"`
	Mode         string `json:"mode"`
	Instructions string `json:"instructions"`
	Channel      string `json:"channel"`
}

type WatermarkView struct {
	Account   string  `json:"account"`
	ItemID    string  `json:"item_id"`
	UpdatedAt *string `json:"updated_at"`
}

type DeliveryView struct {
	ID          string  `json:"id"`
	ItemID      string  `json:"item_id"`
	Account     string  `json:"account"`
	Sink        string  `json:"sink"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	AttemptedAt *string `json:"attempted_at"`
}

type ReplayView struct {
	Sink     string `json:"sink"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	RecordID string `json:"record_id"`
}

type StatusView struct {
	Poller           poller.Status   `json:"poller"`
	Settings         SettingsView    `json:"settings"`
	Sinks            []string        `json:"sinks"`
	Watermarks       []WatermarkView `json:"watermarks"`
	RecentDeliveries []DeliveryView  `json:"recent_deliveries"`
	StoreErrors      []string        `json:"store_errors,omitempty"`
}

func (view SettingsView) From(entity models.MonitorSettings) SettingsView {
	accounts := []string(entity.Accounts)
	if accounts == nil {
		accounts = []string{}
	}
	return SettingsView{
		Accounts:        accounts,
		IntervalSeconds: entity.IntervalSeconds,
		UpdatedAt:       isoformat(entity.UpdatedAt),
	}
}

func (view PolicyView) From(entity models.DeliveryPolicy) PolicyView {
	return PolicyView{
		Account:      entity.Account,
		Mode:         string(entity.Mode),
		Instructions: entity.Instructions,
		Channel:      entity.Channel,
	}
}

func (view WatermarkView) From(entity models.Watermark) WatermarkView {
	return WatermarkView{
		Account:   entity.Account,
		ItemID:    entity.ItemID,
		UpdatedAt: isoformat(entity.UpdatedAt),
	}
}

func (view DeliveryView) From(entity models.DeliveryRecord) DeliveryView {
	return DeliveryView{
		ID:          entity.ID,
		ItemID:      entity.ItemID,
		Account:     entity.Account,
		Sink:        entity.Sink,
		Status:      string(entity.Status),
		Error:       entity.Error,
		AttemptedAt: isoformat(entity.AttemptedAt),
	}
}

func (view ReplayView) From(res dispatch.SinkResult) ReplayView {
	v := ReplayView{Sink: res.Sink, Status: string(res.Status), RecordID: res.RecordID}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func (view StatusView) From(report *lib.StatusReport) StatusView {
	return StatusView{
		Poller:           report.Poller,
		Settings:         SettingsView{}.From(report.Settings),
		Sinks:            report.Sinks,
		Watermarks:       FromMany[models.Watermark, WatermarkView](report.Watermarks),
		RecentDeliveries: FromMany[models.DeliveryRecord, DeliveryView](report.RecentDeliveries),
		StoreErrors:      report.StoreErrors,
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
