package api

import (
	"context"
	"net/http"

	"github.com/minhvu/shortreel/internal/export"
	"github.com/minhvu/shortreel/internal/pipeline"
	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/seed"
)

type ideasRequest struct {
	Seed     string `json:"seed,omitempty"`
	SeedFile string `json:"seedFile,omitempty"`
	SeedURL  string `json:"seedUrl,omitempty"`
	Count    int    `json:"count,omitempty"`
	Append   bool   `json:"append,omitempty"`
}

func handleGenerateIdeas(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ideasRequest
		if !decodeBody(w, r, &req) {
			return
		}

		seedText := req.Seed
		var err error
		switch {
		case req.SeedFile != "":
			seedText, err = seed.FromFile(req.SeedFile)
		case req.SeedURL != "":
			ctx, cancel := context.WithTimeout(r.Context(), seedFetchTimeout)
			defer cancel()
			seedText, err = seed.FromURL(ctx, req.SeedURL, deps.HTTPClient)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		stories, err := deps.Pipeline.GenerateIdeas(r.Context(), seedText, req.Count, req.Append)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"stories": stories, "state": deps.Pipeline.Snapshot()})
	}
}

type storyRequest struct {
	StoryID int `json:"storyId"`
}

func handleSelectStory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := deps.Pipeline.SelectStory(req.StoryID)
		if err != nil {
			writeError(w, err)
			return
		}
		// A new working story invalidates any previous image batch.
		deps.Queue.Clear()
		writeJSON(w, map[string]any{"story": st, "state": deps.Pipeline.Snapshot()})
	}
}

func handleExpandStory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		expanded, err := deps.Pipeline.ExpandStory(r.Context(), req.StoryID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"expandedStory": expanded, "state": deps.Pipeline.Snapshot()})
	}
}

func handleCreateScript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		script, err := deps.Pipeline.CreateScript(r.Context(), req.StoryID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"script": script, "state": deps.Pipeline.Snapshot()})
	}
}

func handleGeneratePrompts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		prompts, err := deps.Pipeline.GeneratePrompts(r.Context(), req.StoryID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"prompts": prompts, "state": deps.Pipeline.Snapshot()})
	}
}

type updatePromptRequest struct {
	StoryID     int    `json:"storyId"`
	SceneNumber int    `json:"sceneNumber"`
	ImagePrompt string `json:"imagePrompt,omitempty"`
	VideoPrompt string `json:"videoPrompt,omitempty"`
}

func handleUpdatePrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updatePromptRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Pipeline.UpdatePrompt(req.StoryID, req.SceneNumber, req.ImagePrompt, req.VideoPrompt); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

func handlePipelineState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Pipeline.Snapshot())
	}
}

type optionsRequest struct {
	AspectRatio    string `json:"aspectRatio"`
	Mood           string `json:"mood,omitempty"`
	StyleID        string `json:"styleId,omitempty"`
	CharacterID    string `json:"characterId,omitempty"`
	ClearCharacter bool   `json:"clearCharacter,omitempty"`
	Vietnamese     bool   `json:"vietnameseAnnotations,omitempty"`
	Theme          string `json:"theme,omitempty"`
}

func handleSetOptions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req optionsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if req.StyleID != "" {
			if err := deps.Library.SetActiveStyle(req.StyleID); err != nil {
				writeError(w, err)
				return
			}
		}
		// The character selection is only touched when the request names one
		// or asks for an explicit clear; a mood or aspect change alone must
		// not drop the locked character.
		if req.CharacterID != "" || req.ClearCharacter {
			if err := deps.Library.SetActiveCharacter(req.CharacterID); err != nil {
				writeError(w, err)
				return
			}
		}

		style := deps.Library.ActiveStyle()
		opts := pipeline.CreativeOptions{
			Aspect:     prompt.AspectRatio(req.AspectRatio),
			MoodName:   req.Mood,
			StyleName:  style.Name,
			Style:      style.Description,
			Vietnamese: req.Vietnamese,
			Theme:      req.Theme,
		}
		if ch, ok := deps.Library.ActiveCharacter(); ok {
			opts.Character = ch.Description
		}
		if err := deps.Pipeline.SetOptions(opts); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, deps.Pipeline.Snapshot())
	}
}

func handleReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Pipeline.Reset()
		deps.Queue.Clear()
		writeJSON(w, deps.Pipeline.Snapshot())
	}
}

// handleExportStory streams the selected story in the requested format:
// text (default) or csv of its scene prompts.
func handleExportStory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := deps.Pipeline.SelectedStory()
		if !ok {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "no story selected")
			return
		}

		switch r.URL.Query().Get("format") {
		case "", "text":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(export.StoryText(st)))
		case "csv":
			if !st.HasPrompts() {
				httpError(w, http.StatusBadRequest, string(provider.KindValidation), "selected story has no scene prompts yet")
				return
			}
			delim, err := export.ParseDelimiter(r.URL.Query().Get("delimiter"))
			if err != nil {
				writeError(w, err)
				return
			}
			data, err := export.PromptsCSV(st.Prompts, delim)
			if err != nil {
				writeError(w, err)
				return
			}
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="scene_prompts.csv"`)
			w.Write(data)
		default:
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "unknown export format %q", r.URL.Query().Get("format"))
		}
	}
}

type translateRequest struct {
	Text string `json:"text"`
}

func handleTranslate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "text is required")
			return
		}
		adapter, cfg, err := deps.Source.Active(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		translated, err := adapter.Translate(r.Context(), req.Text, provider.Request{Model: cfg.Model})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"translated": translated})
	}
}
