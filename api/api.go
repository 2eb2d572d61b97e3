// Package api exposes the dispatcher over HTTP for the marketplace frontend:
// farmer presence signals, offer responses, dispatch control and observability.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shareprinto/dispatcher/core/availability"
	"github.com/shareprinto/dispatcher/core/dispatch"
	"github.com/shareprinto/dispatcher/core/dispatch/audit"
	"github.com/shareprinto/dispatcher/core/farmers"
	"github.com/shareprinto/dispatcher/core/logger"
	"github.com/shareprinto/dispatcher/internal/eventbus"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	scheduler *dispatch.Scheduler
	avail     availability.Store
	registry  farmers.Registry
	audit     audit.Store
	hub       *EventHub
	logToken  string
	log       logger.Logger
}

// Config carries the optional pieces of the HTTP surface.
type Config struct {
	Audit    audit.Store // nil disables /api/dispatch/logs
	LogToken string      // bearer token guarding the logs endpoint, empty means open
	Bus      eventbus.Bus
	Logger   logger.Logger
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(sched *dispatch.Scheduler, avail availability.Store, registry farmers.Registry, cfg Config) (http.Handler, func()) {
	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}
	h := &Handlers{
		scheduler: sched,
		avail:     avail,
		registry:  registry,
		audit:     cfg.Audit,
		logToken:  cfg.LogToken,
		log:       log,
	}
	if cfg.Bus != nil {
		h.hub = NewEventHub(cfg.Bus)
		h.hub.Start()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/user-status", func(r chi.Router) {
			r.Post("/farmer-availability", h.handleFarmerAvailability)
			r.Post("/offer-response", h.handleOfferResponse)
			r.Post("/activity", h.handleActivity)
		})
		r.Route("/logout", func(r chi.Router) {
			r.Post("/manual-logout", h.handleManualLogout)
			r.Post("/browser-close", h.handleBrowserClose)
		})
		r.Route("/dispatch", func(r chi.Router) {
			r.Post("/orders", h.handleStartDispatch)
			r.Get("/runs/{orderID}", h.handleRunStatus)
			r.Delete("/runs/{orderID}", h.handleCancelRun)
			r.Get("/logs", h.handleLogs)
			if h.hub != nil {
				r.Get("/events", h.hub.HandleSSE)
			}
		})
		r.Post("/farmers", h.handleUpsertFarmer)
		r.Get("/farmers", h.handleListFarmers)
	})

	return r, func() {
		if h.hub != nil {
			h.hub.Stop()
		}
	}
}

// envelope is the uniform response shape expected by the frontend.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: status < 400, Message: msg, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeEnvelope(w, status, msg, nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
