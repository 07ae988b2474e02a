package api

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minhvu/shortreel/internal/library"
	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
)

func handleListStyles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"styles": deps.Library.Styles(),
			"active": deps.Library.ActiveStyle().ID,
		})
	}
}

func handleListCharacters(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		characters := deps.Library.Characters()
		if characters == nil {
			characters = []library.Item{}
		}
		activeID := ""
		if ch, ok := deps.Library.ActiveCharacter(); ok {
			activeID = ch.ID
		}
		writeJSON(w, map[string]any{"characters": characters, "active": activeID})
	}
}

type addItemRequest struct {
	Kind        library.Kind `json:"kind"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
}

func handleAddItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if !decodeBody(w, r, &req) {
			return
		}
		item, err := deps.Library.Add(req.Kind, req.Name, req.Description)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, item)
	}
}

func handleDeleteItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Library.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

type setActiveRequest struct {
	StyleID     string `json:"styleId,omitempty"`
	CharacterID string `json:"characterId,omitempty"`
	ClearActive bool   `json:"clearCharacter,omitempty"`
}

func handleSetActive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setActiveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.StyleID != "" {
			if err := deps.Library.SetActiveStyle(req.StyleID); err != nil {
				writeError(w, err)
				return
			}
		}
		if req.CharacterID != "" || req.ClearActive {
			if err := deps.Library.SetActiveCharacter(req.CharacterID); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

type analyzeRequest struct {
	Image     string `json:"image"` // base64
	MimeType  string `json:"mimeType"`
	Style     bool   `json:"style"`
	Character bool   `json:"character"`
	SaveAs    string `json:"saveAs,omitempty"` // optional library item name
}

func handleAnalyzeImage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBodySize)
		defer r.Body.Close()

		var req analyzeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !req.Style && !req.Character {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "at least one of style or character must be requested")
			return
		}
		image, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || len(image) == 0 {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "image must be non-empty base64")
			return
		}
		if req.MimeType == "" {
			req.MimeType = "image/png"
		}

		adapter, cfg, err := deps.Source.Active(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if !deps.Catalog.SupportsVision(cfg.Model) {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "model %q does not support image input", cfg.Model)
			return
		}

		target := prompt.AnalyzeTarget{Style: req.Style, Character: req.Character}
		description, err := adapter.AnalyzeImage(r.Context(), image, req.MimeType, target, provider.Request{Model: cfg.Model})
		if err != nil {
			writeError(w, err)
			return
		}

		resp := map[string]any{"description": description}
		if req.SaveAs != "" {
			kind := library.KindStyle
			if req.Character && !req.Style {
				kind = library.KindCharacter
			}
			item, err := deps.Library.Add(kind, req.SaveAs, description)
			if err != nil {
				writeError(w, err)
				return
			}
			resp["item"] = item
		}
		writeJSON(w, resp)
	}
}
