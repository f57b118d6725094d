package httpapi

import (
	"net/http"

	"listing_enricher/internal/apperr"
	"listing_enricher/internal/utils"
)

// statusByKind is the stable mapping from error kind to HTTP status
var statusByKind = map[apperr.Kind]int{
	apperr.KindQuotaExceeded:     http.StatusTooManyRequests,
	apperr.KindRateLimited:       http.StatusTooManyRequests,
	apperr.KindCredentialMissing: http.StatusPreconditionFailed,
	apperr.KindCredentialFormat:  http.StatusUnprocessableEntity,
	apperr.KindDecryption:        http.StatusInternalServerError,
	apperr.KindProviderCall:      http.StatusBadGateway,
	apperr.KindConfiguration:     http.StatusInternalServerError,
	apperr.KindUnknownProvider:   http.StatusNotFound,
	apperr.KindInvalidRequest:    http.StatusBadRequest,
	apperr.KindImageUnavailable:  http.StatusUnprocessableEntity,
	apperr.KindStorage:           http.StatusServiceUnavailable,
	apperr.KindNotFound:          http.StatusNotFound,
}

// StatusFor returns the HTTP status for err
func StatusFor(err error) int {
	if status, ok := statusByKind[apperr.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondWithAppError writes err in the JSON error shape. Errors that are not
// typed never leak their text.
func (s *Server) respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	appErr, ok := apperr.As(err)
	if !ok {
		s.logger.Error("Unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if status >= 500 {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "kind", appErr.Kind, "error", err)
	}

	resp := utils.ErrorResponse{
		Error:    appErr.Error(),
		Kind:     string(appErr.Kind),
		Provider: appErr.Provider,
		Limit:    appErr.Limit,
		Used:     appErr.Used,
	}
	if appErr.Kind == apperr.KindProviderCall {
		resp.Status = appErr.StatusCode
	}
	switch appErr.Kind {
	case apperr.KindDecryption, apperr.KindStorage, apperr.KindConfiguration, apperr.KindProviderCall:
		// wrapped causes stay in the log
		resp.Error = appErr.Message
	}
	utils.RespondWithJSON(w, status, resp)
}
