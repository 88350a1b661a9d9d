package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupConstantRoutes configures the system-constants registry routes.
func (s *Server) setupConstantRoutes(r chi.Router) {
	r.Route("/constants", func(r chi.Router) {
		r.Get("/", s.handleListConstants)
		r.Get("/{key}", s.handleGetConstant)
		r.Put("/{key}", s.handleSetConstant)
	})
}

func (s *Server) handleListConstants(w http.ResponseWriter, r *http.Request) {
	all, err := s.constants.ListAll()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleGetConstant(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	c, err := s.constants.Get(key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

type setConstantRequest struct {
	Value     float64 `json:"value"`
	UpdatedBy string  `json:"updated_by"`
}

func (s *Server) handleSetConstant(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req setConstantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = "operator"
	}
	if err := s.constants.Set(key, req.Value, req.UpdatedBy); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
