package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/session"
)

type saveSessionRequest struct {
	Name string `json:"name"`
}

func handleSaveSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		name := req.Name
		if name == "" {
			// Default to the selected story's title, matching how sessions
			// are named in the UI flow.
			st, ok := deps.Pipeline.SelectedStory()
			if !ok {
				httpError(w, http.StatusBadRequest, string(provider.KindValidation), "no session name given and no story selected")
				return
			}
			name = st.Title
		}
		saved, err := deps.Sessions.Save(name, deps.Pipeline.Snapshot())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, saved)
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Sessions.List()
		if err != nil {
			writeError(w, err)
			return
		}
		if sessions == nil {
			sessions = []session.Session{}
		}
		writeJSON(w, sessions)
	}
}

func handleLoadSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Load(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		deps.Pipeline.Restore(s.State)
		deps.Queue.Clear()
		writeJSON(w, map[string]any{"session": s, "state": deps.Pipeline.Snapshot()})
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleExportSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := deps.Sessions.Export()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="sessions.json"`)
		w.Write(data)
	}
}

func handleImportSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := session.ImportMode(r.URL.Query().Get("mode"))
		if mode == "" {
			mode = session.Merge
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBodySize)
		defer r.Body.Close()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, string(provider.KindValidation), "reading import body: %v", err)
			return
		}
		added, err := deps.Sessions.Import(data, mode)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"status": "imported", "added": added})
	}
}
