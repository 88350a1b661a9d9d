package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// setupAlertRoutes configures the active-alerts listing, resolution, and
// live-stream routes.
func (s *Server) setupAlertRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", s.handleListAlerts)
		r.Post("/{id}/resolve", s.handleResolveAlert)
		r.Get("/stream", s.handleAlertStream)
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ruleID := r.URL.Query().Get("rule_id")
	if ruleID != "" {
		rows, err := s.alertsRepo.ListActiveByRule(ruleID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, rows)
		return
	}

	rows, err := s.alertsRepo.ListActive()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	resolvedBy := r.URL.Query().Get("resolved_by")
	if resolvedBy == "" {
		resolvedBy = "operator"
	}
	if err := s.alertsRepo.Resolve(id, resolvedBy); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// alertStreamInterval is how often the websocket stream polls for the
// current set of active alerts.
const alertStreamInterval = 5 * time.Second

// handleAlertStream upgrades to a websocket connection and pushes the
// current active-alert list on a fixed interval until the client
// disconnects.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("alert stream: websocket upgrade failed")
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := r.Context()
	ticker := time.NewTicker(alertStreamInterval)
	defer ticker.Stop()

	for {
		active, err := s.alertsRepo.ListActive()
		if err != nil {
			s.log.Error().Err(err).Msg("alert stream: failed to list active alerts")
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = wsjson.Write(writeCtx, c, active)
		cancel()
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
