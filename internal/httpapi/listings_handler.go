package httpapi

import (
	"net/http"

	"listing_enricher/internal/listing"
	"listing_enricher/internal/models"
	"listing_enricher/internal/utils"
)

// EnrichRequest is the body of POST /api/me/enrich
type EnrichRequest struct {
	Provider string   `json:"provider"`
	Images   []string `json:"images"`
	Note     string   `json:"note"`
}

// AssembleRequest is the body of POST /api/listings/assemble
type AssembleRequest struct {
	Row        models.InventoryRow      `json:"row"`
	Enrichment *models.EnrichmentResult `json:"enrichment,omitempty"`
}

// UpdateListingRequest is the body of PATCH /api/me/listings/{id}
type UpdateListingRequest struct {
	Status models.ListingStatus `json:"status"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req EnrichRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	result, err := s.deps.Enricher.Enrich(r.Context(), models.EnrichmentRequest{
		UserID:     userID(r),
		ProviderID: req.Provider,
		ImageRefs:  req.Images,
		UserNote:   req.Note,
	})
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	var req AssembleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, s.deps.Assembler.Assemble(req.Row, req.Enrichment))
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req listing.BuildRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	draft, err := s.deps.Listings.Build(r.Context(), userID(r), req)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, draft)
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.deps.Listings.List(r.Context(), userID(r))
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	if drafts == nil {
		drafts = []models.ListingDraft{}
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"listings": drafts,
		"count":    len(drafts),
	})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	draft, err := s.deps.Listings.Get(r.Context(), userID(r), id)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, draft)
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	var req UpdateListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	draft, err := s.deps.Listings.UpdateStatus(r.Context(), userID(r), id, req.Status)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, draft)
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	if err := s.deps.Listings.Delete(r.Context(), userID(r), id); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
