package httpapi

import (
	"net/http"

	"listing_enricher/internal/utils"
)

// ValidateKeyRequest is the body of POST /api/providers/{provider}/validate
type ValidateKeyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.deps.Catalog.List(),
	})
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Catalog.Describe(r.PathValue("provider"))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, d)
}

// handleValidateKey checks a candidate key's format only. It never calls the
// provider.
func (s *Server) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if _, err := s.deps.Catalog.Describe(provider); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	var req ValidateKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"provider": provider,
		"valid":    s.deps.Catalog.ValidateKeyFormat(provider, req.Key),
	})
}
