package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/waterbalance/internal/domain"
)

// setupFacilityRoutes configures storage-facility CRUD routes.
func (s *Server) setupFacilityRoutes(r chi.Router) {
	r.Route("/facilities", func(r chi.Router) {
		r.Get("/", s.handleListFacilities)
		r.Post("/", s.handleCreateFacility)
		r.Get("/{id}", s.handleGetFacility)
		r.Put("/{id}", s.handleUpdateFacility)
		r.Delete("/{id}", s.handleDeleteFacility)
	})
}

func (s *Server) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	var (
		facilities []*domain.StorageFacility
		err        error
	)
	if status != "" {
		facilities, err = s.facilities.ListByStatus(domain.FacilityStatus(status))
	} else {
		facilities, err = s.facilities.GetAll()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, facilities)
}

func (s *Server) handleGetFacility(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	f, err := s.facilities.GetByID(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleCreateFacility(w http.ResponseWriter, r *http.Request) {
	var f domain.StorageFacility
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	created, err := s.facilities.Create(&f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateFacility(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var fields map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.facilities.Update(id, fields); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteFacility(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := s.facilities.Delete(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
