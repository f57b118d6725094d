package httpapi

import (
	"net/http"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/models"
	"listing_enricher/internal/utils"
)

// PutCredentialRequest is the body of PUT /api/me/credentials/{provider}
type PutCredentialRequest struct {
	Key string `json:"key"`
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	var req PutCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	user, provider := userID(r), r.PathValue("provider")
	if err := s.deps.Credentials.Store(r.Context(), user, provider, req.Key); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	status, err := s.deps.Credentials.Status(r.Context(), user, provider)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if _, err := s.deps.Catalog.Describe(provider); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	status, err := s.deps.Credentials.Status(r.Context(), userID(r), provider)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, status)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Credentials.Delete(r.Context(), userID(r), r.PathValue("provider")); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if _, err := s.deps.Catalog.Describe(provider); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	stats, err := s.deps.Usage.StatsFor(r.Context(), userID(r), provider)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Events(r.Context(), userID(r))
	if err != nil {
		s.respondWithAppError(w, r, apperr.Storage("usage event listing", err))
		return
	}
	if events == nil {
		events = []models.UsageEvent{}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleDeleteMe removes everything stored for the user
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	credentials, err := s.deps.Credentials.DeleteUser(r.Context(), user)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	listings, err := s.deps.Listings.DeleteUser(r.Context(), user)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.logger.Info("User data deleted", "user_id", user, "credentials", credentials, "listings", listings)
	utils.RespondWithJSON(w, http.StatusOK, map[string]int{
		"credentials_deleted": credentials,
		"listings_deleted":    listings,
	})
}
