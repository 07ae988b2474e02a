package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/minhvu/shortreel/internal/imagequeue"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/story"
)

type batchRequest struct {
	Scenes []int `json:"scenes,omitempty"` // empty = all scenes
}

// selectedPrompts returns the selected story's prompt set, or a validation
// error response.
func selectedPrompts(deps Deps, w http.ResponseWriter) ([]story.ScenePrompt, bool) {
	st, ok := deps.Pipeline.SelectedStory()
	if !ok {
		httpError(w, http.StatusBadRequest, string(provider.KindValidation), "no story selected")
		return nil, false
	}
	if !st.HasPrompts() {
		httpError(w, http.StatusBadRequest, string(provider.KindValidation), "selected story has no scene prompts yet")
		return nil, false
	}
	return st.Prompts, true
}

func handleBatchImages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		prompts, ok := selectedPrompts(deps, w)
		if !ok {
			return
		}
		adapter, _, err := deps.Source.Active(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		aspect := deps.Pipeline.Snapshot().Aspect
		if err := deps.Queue.Run(r.Context(), adapter, prompts, aspect, req.Scenes); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, deps.Queue.Snapshot())
	}
}

func handleImageStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Queue.Snapshot())
	}
}

func sceneParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "scene"))
	if err != nil || n <= 0 {
		httpError(w, http.StatusBadRequest, string(provider.KindValidation), "invalid scene number %q", chi.URLParam(r, "scene"))
		return 0, false
	}
	return n, true
}

func handleRegenerateImage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := sceneParam(w, r)
		if !ok {
			return
		}
		prompts, ok := selectedPrompts(deps, w)
		if !ok {
			return
		}
		var target *story.ScenePrompt
		for i := range prompts {
			if prompts[i].SceneNumber == n {
				target = &prompts[i]
				break
			}
		}
		if target == nil {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "no scene %d in the current prompt set", n)
			return
		}
		adapter, _, err := deps.Source.Active(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		aspect := deps.Pipeline.Snapshot().Aspect
		writeJSON(w, deps.Queue.Regenerate(r.Context(), adapter, *target, aspect))
	}
}

func handleGetImage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := sceneParam(w, r)
		if !ok {
			return
		}
		sc := deps.Queue.Scene(n)
		if sc.Status != imagequeue.StatusSuccess || len(sc.Image) == 0 {
			httpError(w, http.StatusNotFound, "not_found", "no generated image for scene %d", n)
			return
		}
		w.Header().Set("Content-Type", sc.MimeType)
		w.Write(sc.Image)
	}
}
