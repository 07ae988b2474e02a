package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minhvu/shortreel/internal/imagequeue"
	"github.com/minhvu/shortreel/internal/keystore"
	"github.com/minhvu/shortreel/internal/library"
	"github.com/minhvu/shortreel/internal/pipeline"
	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/session"
	"github.com/minhvu/shortreel/internal/storage"
	"github.com/minhvu/shortreel/internal/story"
)

// stubAdapter returns canned results for every stage.
type stubAdapter struct {
	failWith error
}

func (a *stubAdapter) Name() provider.Name { return provider.Gemini }

func (a *stubAdapter) GenerateStoryIdeas(ctx context.Context, req provider.Request, count, startID int) ([]story.Story, error) {
	if a.failWith != nil {
		return nil, a.failWith
	}
	out := make([]story.Story, count)
	for i := range out {
		out[i] = story.Story{ID: startID + i, Title: fmt.Sprintf("Story %d", startID+i), Content: "content"}
	}
	return out, nil
}

func (a *stubAdapter) GenerateStoryIdeasFromSeed(ctx context.Context, seed string, req provider.Request, count, startID int) ([]story.Story, error) {
	return a.GenerateStoryIdeas(ctx, req, count, startID)
}

func (a *stubAdapter) ExpandStory(ctx context.Context, text string, req provider.Request) (string, error) {
	if a.failWith != nil {
		return "", a.failWith
	}
	return "EXPANDED", nil
}

func (a *stubAdapter) CreateScript(ctx context.Context, expanded string, req provider.Request) (string, error) {
	return "CHARACTERS\nSCENE 1:", nil
}

func (a *stubAdapter) GenerateVisualPrompts(ctx context.Context, script string, req provider.Request) ([]story.ScenePrompt, error) {
	return []story.ScenePrompt{{SceneNumber: 1, SceneText: "s", ImagePrompt: "i", VideoPrompt: "v"}}, nil
}

func (a *stubAdapter) AnalyzeImage(ctx context.Context, image []byte, mimeType string, target prompt.AnalyzeTarget, req provider.Request) (string, error) {
	return "warm cel-shaded look", nil
}

func (a *stubAdapter) GenerateImage(ctx context.Context, imagePrompt string, aspect prompt.AspectRatio) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (a *stubAdapter) Translate(ctx context.Context, text string, req provider.Request) (string, error) {
	return "đã dịch", nil
}

func (a *stubAdapter) ValidateKey(ctx context.Context, secret string) error {
	if strings.HasPrefix(secret, "sk-valid") {
		return nil
	}
	return provider.Errf(provider.KindKeyInvalid, "key rejected")
}

type stubSource struct {
	adapter provider.Adapter
	err     error
}

func (s *stubSource) Active(ctx context.Context) (provider.Adapter, provider.Config, error) {
	if s.err != nil {
		return nil, provider.Config{}, s.err
	}
	return s.adapter, provider.Config{Provider: provider.Gemini, Model: "gemini-2.5-flash"}, nil
}

func newTestServer(t *testing.T, adapter *stubAdapter, srcErr error) (*httptest.Server, Deps) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	catalog, err := prompt.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	lib, err := library.New(db, catalog)
	if err != nil {
		t.Fatalf("library.New: %v", err)
	}
	keys, err := keystore.New(db)
	if err != nil {
		t.Fatalf("keystore.New: %v", err)
	}
	keys.RegisterValidator(provider.Gemini, adapter)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := &stubSource{adapter: adapter, err: srcErr}
	deps := Deps{
		Store:      db,
		Keys:       keys,
		Library:    lib,
		Pipeline:   pipeline.New(src, catalog, log),
		Sessions:   session.NewManager(db, log),
		Queue:      imagequeue.New(4, log),
		Source:     src,
		Catalog:    catalog,
		HTTPClient: http.DefaultClient,
		Log:        log,
	}
	srv := httptest.NewServer(NewHandler(deps))
	t.Cleanup(srv.Close)
	return srv, deps
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func putJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubAdapter{}, nil)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestIdeasFlowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, &stubAdapter{}, nil)

	resp := postJSON(t, srv.URL+"/v1/pipeline/ideas", map[string]any{"seed": "a paper boat", "count": 4})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ideas status = %d", resp.StatusCode)
	}
	var ideas struct {
		Stories []story.Story     `json:"stories"`
		State   pipeline.Snapshot `json:"state"`
	}
	decode(t, resp, &ideas)
	if len(ideas.Stories) != 4 {
		t.Fatalf("stories = %d", len(ideas.Stories))
	}
	if ideas.State.Stage != pipeline.StageStorySelection {
		t.Errorf("stage = %s", ideas.State.Stage)
	}

	resp = postJSON(t, srv.URL+"/v1/pipeline/select", map[string]int{"storyId": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/pipeline/expand", map[string]int{"storyId": 1})
	var expand struct {
		ExpandedStory string `json:"expandedStory"`
	}
	decode(t, resp, &expand)
	if expand.ExpandedStory != "EXPANDED" {
		t.Errorf("expandedStory = %q", expand.ExpandedStory)
	}
}

func TestErrorEnvelopeCarriesKind(t *testing.T) {
	authErr := provider.Errf(provider.KindAuth, "no active API key for provider \"gemini\"")
	srv, _ := newTestServer(t, &stubAdapter{}, authErr)

	resp := postJSON(t, srv.URL+"/v1/pipeline/ideas", map[string]any{"count": 3})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decode(t, resp, &envelope)
	if envelope.Error.Type != "authentication_error" {
		t.Errorf("type = %q", envelope.Error.Type)
	}
	if envelope.Error.Message == "" {
		t.Error("message empty")
	}
}

func TestKeyRoutes(t *testing.T) {
	srv, _ := newTestServer(t, &stubAdapter{}, nil)

	resp := postJSON(t, srv.URL+"/v1/keys/gemini", map[string]string{"secret": "sk-valid-abcdef123456"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add key status = %d", resp.StatusCode)
	}
	var added struct {
		ID     string `json:"id"`
		Masked string `json:"masked"`
	}
	decode(t, resp, &added)
	if !strings.Contains(added.Masked, "*") {
		t.Errorf("masked = %q", added.Masked)
	}

	resp = postJSON(t, srv.URL+"/v1/keys/gemini", map[string]string{"secret": "sk-bogus"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid key status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/v1/keys/gemini")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Keys        []keystore.APIKey `json:"keys"`
		ActiveKeyID string            `json:"activeKeyId"`
	}
	decode(t, resp, &list)
	if len(list.Keys) != 1 || list.ActiveKeyID != added.ID {
		t.Errorf("list = %+v active=%q", list.Keys, list.ActiveKeyID)
	}
	for _, k := range list.Keys {
		if k.Secret != "" {
			t.Error("secret leaked over HTTP")
		}
	}

	resp = postJSON(t, srv.URL+"/v1/keys/unknownvendor", map[string]string{"secret": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown provider status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionRoutesRoundTrip(t *testing.T) {
	srv, deps := newTestServer(t, &stubAdapter{}, nil)

	if _, err := deps.Pipeline.GenerateIdeas(context.Background(), "", 2, false); err != nil {
		t.Fatal(err)
	}
	if _, err := deps.Pipeline.SelectStory(0); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, srv.URL+"/v1/sessions/", map[string]string{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}
	var saved session.Session
	decode(t, resp, &saved)
	if saved.Name != "Story 0" {
		t.Errorf("default session name = %q", saved.Name)
	}

	deps.Pipeline.Reset()

	resp = postJSON(t, srv.URL+"/v1/sessions/"+saved.ID+"/load", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if snap := deps.Pipeline.Snapshot(); len(snap.Stories) != 2 {
		t.Errorf("restore lost stories: %d", len(snap.Stories))
	}

	resp, err := http.Get(srv.URL + "/v1/sessions/export")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(data, []byte(saved.ID)) {
		t.Error("export missing saved session")
	}
}

func TestBatchImagesOverHTTP(t *testing.T) {
	srv, deps := newTestServer(t, &stubAdapter{}, nil)
	ctx := context.Background()

	if _, err := deps.Pipeline.GenerateIdeas(ctx, "", 1, false); err != nil {
		t.Fatal(err)
	}
	if _, err := deps.Pipeline.ExpandStory(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := deps.Pipeline.CreateScript(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := deps.Pipeline.GeneratePrompts(ctx, 0); err != nil {
		t.Fatal(err)
	}

	resp := postJSON(t, srv.URL+"/v1/images/batch", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("batch status = %d", resp.StatusCode)
	}
	var slots []imagequeue.SceneImage
	decode(t, resp, &slots)
	if len(slots) != 1 || slots[0].Status != imagequeue.StatusSuccess {
		t.Fatalf("slots = %+v", slots)
	}

	resp, err := http.Get(srv.URL + "/v1/images/1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get image status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
}

func TestThemeRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, &stubAdapter{}, nil)

	resp, err := http.Get(srv.URL + "/v1/theme")
	if err != nil {
		t.Fatal(err)
	}
	var theme struct {
		Theme string `json:"theme"`
	}
	decode(t, resp, &theme)
	if theme.Theme != "dark" {
		t.Errorf("default theme = %q, want dark", theme.Theme)
	}

	resp = putJSON(t, srv.URL+"/v1/theme", map[string]string{"theme": "light"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put theme status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/theme")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &theme)
	if theme.Theme != "light" {
		t.Errorf("persisted theme = %q, want light", theme.Theme)
	}

	resp = putJSON(t, srv.URL+"/v1/theme", map[string]string{"theme": "mauve"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid theme status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSetOptionsPreservesActiveCharacter(t *testing.T) {
	srv, deps := newTestServer(t, &stubAdapter{}, nil)

	ch, err := deps.Library.Add(library.KindCharacter, "Mai", "a quiet ferry pilot")
	if err != nil {
		t.Fatal(err)
	}
	if err := deps.Library.SetActiveCharacter(ch.ID); err != nil {
		t.Fatal(err)
	}

	// A mood/aspect-only change must leave the locked character in place.
	resp := postJSON(t, srv.URL+"/v1/pipeline/options", map[string]any{
		"aspectRatio": "9:16",
		"mood":        "melancholic",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("options status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	active, ok := deps.Library.ActiveCharacter()
	if !ok || active.ID != ch.ID {
		t.Fatalf("active character lost after options change: ok=%v id=%q", ok, active.ID)
	}

	// An explicit clear still works.
	resp = postJSON(t, srv.URL+"/v1/pipeline/options", map[string]any{
		"aspectRatio":    "9:16",
		"clearCharacter": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	if _, ok := deps.Library.ActiveCharacter(); ok {
		t.Error("character still active after explicit clear")
	}
}

func TestTranslateRoute(t *testing.T) {
	srv, _ := newTestServer(t, &stubAdapter{}, nil)
	resp := postJSON(t, srv.URL+"/v1/translate", map[string]string{"text": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Translated string `json:"translated"`
	}
	decode(t, resp, &out)
	if out.Translated != "đã dịch" {
		t.Errorf("translated = %q", out.Translated)
	}
}
