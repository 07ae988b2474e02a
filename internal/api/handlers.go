// Package api exposes the pipeline over localhost HTTP for UI collaborators
// and over MCP for agent tooling. Handlers translate classified provider
// errors into JSON error envelopes; no business logic lives here.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minhvu/shortreel/internal/imagequeue"
	"github.com/minhvu/shortreel/internal/keystore"
	"github.com/minhvu/shortreel/internal/library"
	"github.com/minhvu/shortreel/internal/pipeline"
	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/session"
	"github.com/minhvu/shortreel/internal/storage"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxImageBodySize = 10 << 20   // 10MB uploads for analysis
const seedFetchTimeout = 30 * time.Second

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Store      *storage.Store
	Keys       *keystore.Store
	Library    *library.Library
	Pipeline   *pipeline.Service
	Sessions   *session.Manager
	Queue      *imagequeue.Queue
	Source     pipeline.AdapterSource
	Catalog    *prompt.Catalog
	HTTPClient *http.Client
	Log        *slog.Logger
}

// NewHandler builds the chi router with every route mounted.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", handleListModels(deps))
		r.Get("/config", handleGetConfig(deps))
		r.Put("/config", handlePutConfig(deps))
		r.Get("/theme", handleGetTheme(deps))
		r.Put("/theme", handlePutTheme(deps))

		r.Route("/pipeline", func(r chi.Router) {
			r.Get("/", handlePipelineState(deps))
			r.Post("/ideas", handleGenerateIdeas(deps))
			r.Post("/select", handleSelectStory(deps))
			r.Post("/expand", handleExpandStory(deps))
			r.Post("/script", handleCreateScript(deps))
			r.Post("/prompts", handleGeneratePrompts(deps))
			r.Patch("/prompts", handleUpdatePrompt(deps))
			r.Post("/options", handleSetOptions(deps))
			r.Post("/reset", handleReset(deps))
			r.Get("/export", handleExportStory(deps))
		})

		r.Post("/translate", handleTranslate(deps))
		r.Post("/analyze", handleAnalyzeImage(deps))

		r.Route("/keys", func(r chi.Router) {
			r.Get("/{provider}", handleListKeys(deps))
			r.Post("/{provider}", handleAddKey(deps))
			r.Put("/{provider}/{id}/activate", handleActivateKey(deps))
			r.Delete("/{provider}/{id}", handleDeleteKey(deps))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", handleListSessions(deps))
			r.Post("/", handleSaveSession(deps))
			r.Get("/export", handleExportSessions(deps))
			r.Post("/import", handleImportSessions(deps))
			r.Post("/{id}/load", handleLoadSession(deps))
			r.Delete("/{id}", handleDeleteSession(deps))
		})

		r.Route("/library", func(r chi.Router) {
			r.Get("/styles", handleListStyles(deps))
			r.Get("/characters", handleListCharacters(deps))
			r.Post("/items", handleAddItem(deps))
			r.Delete("/items/{id}", handleDeleteItem(deps))
			r.Put("/active", handleSetActive(deps))
		})

		r.Route("/images", func(r chi.Router) {
			r.Post("/batch", handleBatchImages(deps))
			r.Get("/status", handleImageStatus(deps))
			r.Post("/{scene}", handleRegenerateImage(deps))
			r.Get("/{scene}", handleGetImage(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		httpError(w, http.StatusBadRequest, string(provider.KindValidation), "invalid request body: %v", err)
		return false
	}
	return true
}

// writeError maps classified errors onto HTTP statuses and the JSON error
// envelope. The type field carries the taxonomy kind so clients can choose
// the right remediation hint.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
		return
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		httpError(w, statusForKind(pe.Kind), string(pe.Kind), "%v", pe)
		return
	}
	if errors.Is(err, pipeline.ErrStale) {
		httpError(w, http.StatusConflict, string(provider.KindValidation), "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}

func statusForKind(k provider.Kind) int {
	switch k {
	case provider.KindAuth:
		return http.StatusUnauthorized
	case provider.KindKeyInvalid, provider.KindValidation:
		return http.StatusBadRequest
	case provider.KindNetwork, provider.KindShape:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func providerParam(r *http.Request) (provider.Name, bool) {
	name := provider.Name(chi.URLParam(r, "provider"))
	return name, name.Valid()
}
