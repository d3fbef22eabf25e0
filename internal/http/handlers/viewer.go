package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ViewerToken hands untrusted viewer clients a read-only credential.
func (a *App) ViewerToken(w http.ResponseWriter, r *http.Request) {
	token, err := a.Stager.ViewerTokenFor(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("viewer token fetch failed")
		a.error(w, http.StatusBadGateway, "upstream", "failed to obtain viewer token")
		return
	}
	a.json(w, http.StatusOK, token)
}

// TranslationStatus polls the derivative manifest for a staged drawing.
// A translation that has not started reports as pending, not as an error.
func (a *App) TranslationStatus(w http.ResponseWriter, r *http.Request) {
	urn := chi.URLParam(r, "urn")
	if urn == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "urn required")
		return
	}
	status, err := a.Stager.Translation(r.Context(), urn)
	if err != nil {
		a.Logger.Error().Err(err).Str("urn", urn).Msg("translation status fetch failed")
		a.error(w, http.StatusBadGateway, "upstream", err.Error())
		return
	}
	a.json(w, http.StatusOK, status)
}
