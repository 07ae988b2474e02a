package api

import (
	"context"
	"net/http"

	"github.com/minhvu/shortreel/internal/keystore"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/storage"
)

// ProviderSource resolves the configured adapter at call time: persisted AI
// config plus the active key from the key store. Every stage call goes
// through here, so switching provider or key takes effect immediately.
type ProviderSource struct {
	db       *storage.Store
	keys     *keystore.Store
	factory  *provider.Factory
	defaults provider.Config
}

// NewProviderSource wires the source. defaults apply when no aiConfig has
// been persisted yet.
func NewProviderSource(db *storage.Store, keys *keystore.Store, factory *provider.Factory, defaults provider.Config) *ProviderSource {
	return &ProviderSource{db: db, keys: keys, factory: factory, defaults: defaults}
}

// Active returns the adapter for the current config, bound to the active
// key. A missing active key is an authentication error raised before any
// network call.
func (s *ProviderSource) Active(ctx context.Context) (provider.Adapter, provider.Config, error) {
	cfg, err := s.Config()
	if err != nil {
		return nil, provider.Config{}, err
	}
	secret, err := s.keys.ActiveSecret(cfg.Provider)
	if err != nil {
		return nil, provider.Config{}, err
	}
	adapter, err := s.factory.For(cfg, secret)
	if err != nil {
		return nil, provider.Config{}, err
	}
	return adapter, cfg, nil
}

// Config returns the persisted AI config, falling back to defaults.
func (s *ProviderSource) Config() (provider.Config, error) {
	cfg := s.defaults
	err := s.db.GetSetting(storage.KeyAIConfig, &cfg)
	if err != nil && err != storage.ErrNotFound {
		return provider.Config{}, err
	}
	return cfg, nil
}

// SetConfig validates and persists a new AI config.
func (s *ProviderSource) SetConfig(cfg provider.Config) error {
	if !cfg.Provider.Valid() {
		return provider.Errf(provider.KindValidation, "unknown provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		return provider.Errf(provider.KindValidation, "model must not be empty")
	}
	if _, ok := s.factory.Catalog().Model(cfg.Model); !ok {
		return provider.Errf(provider.KindValidation, "unknown model %q", cfg.Model)
	}
	return s.db.SetSetting(storage.KeyAIConfig, cfg)
}

func handleGetConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, ok := deps.Source.(*ProviderSource)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "config source unavailable")
			return
		}
		cfg, err := src.Config()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, cfg)
	}
}

func handlePutConfig(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, ok := deps.Source.(*ProviderSource)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "config source unavailable")
			return
		}
		var cfg provider.Config
		if !decodeBody(w, r, &cfg) {
			return
		}
		if err := src.SetConfig(cfg); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, cfg)
	}
}

type themeSetting struct {
	Theme string `json:"theme"`
}

// The UI theme is persisted daemon-side so every collaborator sees the same
// appearance. Absent a saved value, dark is the default.
func handleGetTheme(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		theme := "dark"
		var saved string
		err := deps.Store.GetSetting(storage.KeyTheme, &saved)
		switch {
		case err == nil:
			theme = saved
		case err != storage.ErrNotFound:
			writeError(w, err)
			return
		}
		writeJSON(w, themeSetting{Theme: theme})
	}
}

func handlePutTheme(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req themeSetting
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Theme != "light" && req.Theme != "dark" {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "theme must be %q or %q", "light", "dark")
			return
		}
		if err := deps.Store.SetSetting(storage.KeyTheme, req.Theme); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, req)
	}
}

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Catalog.Models(r.URL.Query().Get("provider")))
	}
}
