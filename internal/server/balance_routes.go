package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/waterbalance/internal/domain"
)

// setupBalanceRoutes configures the monthly-close and storage-history
// routes.
func (s *Server) setupBalanceRoutes(r chi.Router) {
	r.Route("/balance", func(r chi.Router) {
		r.Post("/close", s.handleBalanceClose)
		r.Get("/history/{code}", s.handleBalanceHistory)
	})
}

type closeRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) handleBalanceClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	period, err := domain.NewPeriod(req.Year, req.Month)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := s.orchestrator.Close(period)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, []domain.StorageHistory{})
		return
	}
	rows, err := s.history.ListByFacility(code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}
