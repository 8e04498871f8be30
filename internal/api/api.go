// Package api exposes the engine's control surface over HTTP: watch
// lifecycle, push channel lifecycle, background scan registration,
// position ingest, and status.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/ChenCXxx/townpass-microservice/internal/engine"
	"github.com/ChenCXxx/townpass-microservice/internal/geo"
	"github.com/ChenCXxx/townpass-microservice/internal/watch"
)

// maxRequestBody bounds control request payloads.
const maxRequestBody = 1 << 16

type handler struct {
	logger hclog.Logger
	engine *engine.Engine
	feed   *watch.Feed
}

// NewRouter builds the control router. metricsHandler serves the
// Prometheus registry and may be nil to omit the endpoint.
func NewRouter(e *engine.Engine, feed *watch.Feed, logger hclog.Logger, metricsHandler http.Handler) *mux.Router {
	h := &handler{logger: logger, engine: e, feed: feed}

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/watch/start", h.startWatch).Methods(http.MethodPost)
	api.HandleFunc("/watch/stop", h.stopWatch).Methods(http.MethodPost)
	api.HandleFunc("/push/connect", h.connectPush).Methods(http.MethodPost)
	api.HandleFunc("/push/disconnect", h.disconnectPush).Methods(http.MethodPost)
	api.HandleFunc("/scan/register", h.registerScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/cancel", h.cancelScan).Methods(http.MethodPost)
	api.HandleFunc("/position", h.publishPosition).Methods(http.MethodPost)
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)

	if metricsHandler != nil {
		router.Path("/metrics").Handler(metricsHandler)
	}
	return router
}

func (h *handler) startWatch(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StartWatch(); err != nil {
		code := http.StatusInternalServerError
		reason := "start_failed"
		switch {
		case errors.Is(err, watch.ErrServiceDisabled):
			code = http.StatusConflict
			reason = "service_disabled"
		case errors.Is(err, watch.ErrPermissionDenied):
			code = http.StatusForbidden
			reason = "permission_denied"
		}
		h.writeError(w, code, reason, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *handler) stopWatch(w http.ResponseWriter, r *http.Request) {
	h.engine.StopWatch()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
}

func (h *handler) connectPush(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExternalID string `json:"external_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if body.ExternalID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_external_id",
			errors.New("external_id is required"))
		return
	}
	if err := h.engine.ConnectPush(body.ExternalID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "connect_failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "connecting"})
}

func (h *handler) disconnectPush(w http.ResponseWriter, r *http.Request) {
	h.engine.DisconnectPush()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (h *handler) registerScan(w http.ResponseWriter, r *http.Request) {
	h.engine.RegisterBackgroundScan()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (h *handler) cancelScan(w http.ResponseWriter, r *http.Request) {
	h.engine.CancelBackgroundScan()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *handler) publishPosition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Latitude   float64    `json:"latitude"`
		Longitude  float64    `json:"longitude"`
		ObservedAt *time.Time `json:"observed_at,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if body.Latitude < -90 || body.Latitude > 90 || body.Longitude < -180 || body.Longitude > 180 {
		h.writeError(w, http.StatusBadRequest, "invalid_coordinates",
			errors.Errorf("coordinates out of range: %f, %f", body.Latitude, body.Longitude))
		return
	}

	observed := time.Now()
	if body.ObservedAt != nil {
		observed = *body.ObservedAt
	}
	h.feed.Publish(geo.Position{
		Latitude:   body.Latitude,
		Longitude:  body.Longitude,
		ObservedAt: observed,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Status())
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := decoder.Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode request body")
	}
	return nil
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to write response", "error", err.Error())
	}
}

func (h *handler) writeError(w http.ResponseWriter, code int, reason string, err error) {
	h.logger.Warn("request failed", "reason", reason, "error", err.Error())
	h.writeJSON(w, code, map[string]string{
		"error":  reason,
		"detail": err.Error(),
	})
}
