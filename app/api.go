package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fiffu/postwatch/config"
	"github.com/fiffu/postwatch/lib"
	"github.com/fiffu/postwatch/lib/dedup"
	"github.com/fiffu/postwatch/lib/dispatch"
	"github.com/fiffu/postwatch/lib/models"
	"github.com/fiffu/postwatch/lib/poller"
	"github.com/fiffu/postwatch/lib/store"
	"github.com/fiffu/postwatch/senders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, sinks senders.Registry) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, sinks)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			log.Sugar().Infow("HTTP server started", "addr", addr)
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

// Service is the part of lib.Service the API serves.
type Service interface {
	GetSettings(ctx context.Context) (models.MonitorSettings, error)
	UpdateSettings(ctx context.Context, update lib.SettingsUpdate) (models.MonitorSettings, error)
	PatchSettings(ctx context.Context, patch map[string]any) (models.MonitorSettings, error)
	GetPolicy(ctx context.Context, account string) (models.DeliveryPolicy, error)
	ListPolicies(ctx context.Context) ([]models.DeliveryPolicy, error)
	PutPolicy(ctx context.Context, p models.DeliveryPolicy) (models.DeliveryPolicy, error)
	DeletePolicy(ctx context.Context, account string) error
	TriggerPoll() bool
	Status(ctx context.Context) *lib.StatusReport
	PollerStatus() poller.Status
	Deliveries(ctx context.Context, limit int) (models.DeliveryRecords, error)
	Replay(ctx context.Context, recordID string) (dispatch.SinkResult, error)
}

func router(cfg *config.Config, log *zap.Logger, svc Service, sinks senders.Registry) http.Handler {
	ctrl := &controller{log, svc}
	recv := &receiver{
		log:     log,
		token:   cfg.Delivery.WebhookToken,
		seen:    dedup.New(cfg.Delivery.DedupCapacity),
		sink:    sinks[senders.KindProcess],
		timeout: cfg.Delivery.SinkTimeout,
	}
	if recv.timeout <= 0 {
		recv.timeout = 15 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", ctrl.health)

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("postwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", ctrl.getSettings)
			r.Put("/", ctrl.putSettings)
			r.Patch("/", ctrl.patchSettings)
		})
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", ctrl.listPolicies)
			r.Get("/{account}", ctrl.getPolicy)
			r.Put("/{account}", ctrl.putPolicy)
			r.Delete("/{account}", ctrl.deletePolicy)
		})
		r.Post("/poll", ctrl.triggerPoll)
		r.Get("/status", ctrl.status)
		r.Get("/deliveries", ctrl.deliveries)
		r.Post("/deliveries/{id}/replay", ctrl.replay)
	})
	r.Post("/hooks/tweet", recv.receive)

	return r
}

type controller struct {
	log *zap.Logger
	svc Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

// fail maps service errors onto status codes.
func (ctrl *controller) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lib.ErrInvalidSettings):
		ctrl.reject(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, dispatch.ErrUnknownSink):
		ctrl.reject(w, http.StatusConflict, err)
	default:
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		ctrl.reject(w, http.StatusInternalServerError, err)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", lib.ErrInvalidSettings, err)
	}
	return nil
}

func (ctrl *controller) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := ctrl.svc.GetSettings(r.Context())
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SettingsView{}.From(settings))
}

func (ctrl *controller) putSettings(w http.ResponseWriter, r *http.Request) {
	var update lib.SettingsUpdate
	if err := decodeBody(r, &update); err != nil {
		ctrl.fail(w, err)
		return
	}
	settings, err := ctrl.svc.UpdateSettings(r.Context(), update)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SettingsView{}.From(settings))
}

func (ctrl *controller) patchSettings(w http.ResponseWriter, r *http.Request) {
	patch := map[string]any{}
	if err := decodeBody(r, &patch); err != nil {
		ctrl.fail(w, err)
		return
	}
	settings, err := ctrl.svc.PatchSettings(r.Context(), patch)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SettingsView{}.From(settings))
}

func (ctrl *controller) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := ctrl.svc.ListPolicies(r.Context())
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.DeliveryPolicy, PolicyView](policies))
}

func (ctrl *controller) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := ctrl.svc.GetPolicy(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, PolicyView{}.From(p))
}

func (ctrl *controller) putPolicy(w http.ResponseWriter, r *http.Request) {
	var body PolicyView
	if err := decodeBody(r, &body); err != nil {
		ctrl.fail(w, err)
		return
	}
	p, err := ctrl.svc.PutPolicy(r.Context(), models.DeliveryPolicy{
		Account:      chi.URLParam(r, "account"),
		Mode:         models.DeliveryMode(body.Mode),
		Instructions: body.Instructions,
		Channel:      body.Channel,
	})
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, PolicyView{}.From(p))
}

func (ctrl *controller) deletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := ctrl.svc.DeletePolicy(r.Context(), chi.URLParam(r, "account")); err != nil {
		ctrl.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) triggerPoll(w http.ResponseWriter, r *http.Request) {
	queued := ctrl.svc.TriggerPoll()
	ctrl.resolve(w, http.StatusAccepted, map[string]any{"queued": queued})
}

// health answers 503 while the last cycle failed, so a broken store or
// source shows up to whatever probes the service.
func (ctrl *controller) health(w http.ResponseWriter, r *http.Request) {
	st := ctrl.svc.PollerStatus()
	if !st.Healthy {
		http.Error(w, fmt.Sprintf("unhealthy: %s failure: %s", st.LastErrorKind, st.LastError), http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

func (ctrl *controller) status(w http.ResponseWriter, r *http.Request) {
	ctrl.resolve(w, http.StatusOK, StatusView{}.From(ctrl.svc.Status(r.Context())))
}

func (ctrl *controller) deliveries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := ctrl.svc.Deliveries(r.Context(), limit)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.DeliveryRecord, DeliveryView](recs))
}

func (ctrl *controller) replay(w http.ResponseWriter, r *http.Request) {
	res, err := ctrl.svc.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, ReplayView{}.From(res))
}

// receiver is the consumer side of the webhook: it drops redelivered items
// and hands the rest to the local agent command.
type receiver struct {
	log     *zap.Logger
	token   string
	seen    *dedup.Cache
	sink    senders.Sink // nil when no agent command is configured
	timeout time.Duration
}

func (recv *receiver) receive(w http.ResponseWriter, r *http.Request) {
	if recv.token != "" && r.Header.Get("Authorization") != "Bearer "+recv.token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	evt, err := senders.DecodeEvent(body, "")
	if err != nil || evt.Tweet.ID == "" {
		http.Error(w, "expected a new_tweet event with tweet.id", http.StatusBadRequest)
		return
	}

	if recv.seen.CheckAndRemember(evt.Tweet.ID) {
		recv.log.Sugar().Infow("Ignoring duplicate delivery", "item_id", evt.Tweet.ID)
		writeJSON(w, http.StatusOK, map[string]any{"duplicate": true})
		return
	}

	if recv.sink == nil {
		recv.log.Sugar().Infow("Received item (no agent command configured)", "item_id", evt.Tweet.ID, "url", evt.Tweet.URL)
		writeJSON(w, http.StatusOK, map[string]any{"duplicate": false})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), recv.timeout)
	defer cancel()
	if err := recv.sink.Send(ctx, evt); err != nil {
		recv.log.Sugar().Warnw("Agent command failed", "item_id", evt.Tweet.ID, "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicate": false})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
