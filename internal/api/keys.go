package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minhvu/shortreel/internal/provider"
)

type addKeyRequest struct {
	Secret string `json:"secret"`
}

func handleAddKey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := providerParam(r)
		if !ok {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "unknown provider %q", chi.URLParam(r, "provider"))
			return
		}
		var req addKeyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		key, err := deps.Keys.AddKey(r.Context(), name, req.Secret)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"id": key.ID, "masked": key.Masked})
	}
}

func handleListKeys(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := providerParam(r)
		if !ok {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "unknown provider %q", chi.URLParam(r, "provider"))
			return
		}
		keys, activeID := deps.Keys.List(name)
		writeJSON(w, map[string]any{"keys": keys, "activeKeyId": activeID})
	}
}

func handleActivateKey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := providerParam(r)
		if !ok {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "unknown provider %q", chi.URLParam(r, "provider"))
			return
		}
		if err := deps.Keys.SetActive(name, chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "activated"})
	}
}

func handleDeleteKey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := providerParam(r)
		if !ok {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "unknown provider %q", chi.URLParam(r, "provider"))
			return
		}
		if err := deps.Keys.DeleteKey(name, chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
