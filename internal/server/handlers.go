package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/waterbalance/internal/waterr"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "waterbalance",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError writes an error response, mapping a waterr.Kind to its HTTP
// status where the error carries one.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var werr *waterr.Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case waterr.NotFound:
			status = http.StatusNotFound
		case waterr.DuplicateCode, waterr.InvariantViolation, waterr.InputFormat:
			status = http.StatusBadRequest
		case waterr.QuotaExceeded:
			status = http.StatusTooManyRequests
		case waterr.Timeout:
			status = http.StatusGatewayTimeout
		case waterr.StorageBackendError:
			status = http.StatusInternalServerError
		}
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
