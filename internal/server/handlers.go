package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/sentinel-vault/internal/utils"
)

// handleHealth reports liveness plus a quick database integrity check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"service": "sentinel-vault",
	}

	if err := s.db.QuickCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		response["status"] = "unhealthy"
		response["error"] = err.Error()
		utils.WriteJSON(w, http.StatusServiceUnavailable, response, s.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, response, s.log)
}
