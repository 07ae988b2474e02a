// Package pipeline drives the staged story workflow: ideation, story
// selection, expansion, script generation, visual prompt generation. The
// stage and its phase form a tagged pair; per-story results are memoized so
// re-selecting a story jumps straight back to its furthest completed stage.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/story"
)

// Stage is the workflow position.
type Stage string

const (
	StageIdeation       Stage = "IDEATION"
	StageStorySelection Stage = "STORY_SELECTION"
	StageExpansion      Stage = "STORY_EXPANSION"
	StageScript         Stage = "SCRIPT_GENERATION"
	StagePrompts        Stage = "PROMPT_GENERATION"
)

// Phase qualifies the stage: waiting for input, calling the model, or done.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseDone       Phase = "done"
)

// ErrStale is returned when a generation finished after the pipeline was
// reset or a session was loaded over it; the result is discarded.
var ErrStale = errors.New("pipeline state changed during generation; result discarded")

// Snapshot is the full serializable pipeline state. Sessions persist it
// verbatim.
type Snapshot struct {
	Stage           Stage              `json:"stage"`
	Phase           Phase              `json:"phase"`
	Stories         []story.Story      `json:"stories"`
	SelectedStoryID int                `json:"selectedStoryId"`
	Seed            string             `json:"seed,omitempty"`
	Aspect          prompt.AspectRatio `json:"aspectRatio"`
	MoodName        string             `json:"mood,omitempty"`
	StyleName       string             `json:"styleName,omitempty"`
	Style           string             `json:"styleDescription,omitempty"`
	Character       string             `json:"character,omitempty"`
	Vietnamese      bool               `json:"vietnameseAnnotations"`
	Theme           string             `json:"theme,omitempty"`
}

// AdapterSource resolves the currently configured adapter and model. The
// HTTP layer backs it with the persisted AI config and the key store; tests
// back it with a mock.
type AdapterSource interface {
	Active(ctx context.Context) (provider.Adapter, provider.Config, error)
}

// Service is the pipeline state machine. All methods are safe for concurrent
// use; at most one generation runs at a time.
type Service struct {
	src     AdapterSource
	catalog *prompt.Catalog
	log     *slog.Logger

	mu   sync.Mutex
	gen  uint64 // bumped by Reset and Restore; in-flight results compare against it
	snap Snapshot
}

// New creates a pipeline in its initial state.
func New(src AdapterSource, catalog *prompt.Catalog, log *slog.Logger) *Service {
	return &Service{src: src, catalog: catalog, log: log, snap: initialSnapshot()}
}

func initialSnapshot() Snapshot {
	return Snapshot{
		Stage:           StageIdeation,
		Phase:           PhaseIdle,
		SelectedStoryID: -1,
		Aspect:          prompt.Landscape,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snap)
}

func copySnapshot(in Snapshot) Snapshot {
	out := in
	out.Stories = make([]story.Story, len(in.Stories))
	copy(out.Stories, in.Stories)
	for i, st := range out.Stories {
		if st.Prompts != nil {
			prompts := make([]story.ScenePrompt, len(st.Prompts))
			copy(prompts, st.Prompts)
			out.Stories[i].Prompts = prompts
		}
	}
	return out
}

// Restore replaces the in-memory state wholesale (session load). A restore
// invalidates any in-flight generation.
func (s *Service) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	snap.Phase = PhaseIdle
	if snap.Stage == "" {
		snap.Stage = StageIdeation
	}
	if !snap.Aspect.Valid() {
		snap.Aspect = prompt.Landscape
	}
	s.snap = copySnapshot(snap)
}

// Reset clears stories, selection, and seed and returns to ideation. The
// creative options (mood, style, character, aspect) survive a reset.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	keep := s.snap
	s.snap = initialSnapshot()
	s.snap.Aspect = keep.Aspect
	s.snap.MoodName = keep.MoodName
	s.snap.StyleName = keep.StyleName
	s.snap.Style = keep.Style
	s.snap.Character = keep.Character
	s.snap.Vietnamese = keep.Vietnamese
	s.snap.Theme = keep.Theme
}

// CreativeOptions are the user-adjustable template parameters.
type CreativeOptions struct {
	Aspect     prompt.AspectRatio
	MoodName   string
	StyleName  string
	Style      string
	Character  string
	Vietnamese bool
	Theme      string
}

// SetOptions updates the creative options for subsequent generations.
func (s *Service) SetOptions(o CreativeOptions) error {
	if !o.Aspect.Valid() {
		return provider.Errf(provider.KindValidation, "unsupported aspect ratio %q", o.Aspect)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Aspect = o.Aspect
	s.snap.MoodName = o.MoodName
	s.snap.StyleName = o.StyleName
	s.snap.Style = o.Style
	s.snap.Character = o.Character
	s.snap.Vietnamese = o.Vietnamese
	s.snap.Theme = o.Theme
	return nil
}

func (s *Service) options() prompt.Options {
	o := prompt.Options{
		Aspect:                s.snap.Aspect,
		StyleDescription:      s.snap.Style,
		Character:             s.snap.Character,
		VietnameseAnnotations: s.snap.Vietnamese,
	}
	if m, ok := s.catalog.Mood(s.snap.MoodName); ok {
		o.Mood = m
	} else {
		o.Mood = prompt.Mood{Name: s.snap.MoodName}
	}
	return o
}

// beginGeneration flips the phase to generating and captures everything the
// adapter call needs. The lock is not held during the call itself.
func (s *Service) beginGeneration(ctx context.Context, stage Stage) (provider.Adapter, provider.Request, uint64, Snapshot, error) {
	s.mu.Lock()
	if s.snap.Phase == PhaseGenerating {
		s.mu.Unlock()
		return nil, provider.Request{}, 0, Snapshot{}, provider.Errf(provider.KindValidation, "a generation is already in progress")
	}
	prev := copySnapshot(s.snap)
	s.snap.Stage = stage
	s.snap.Phase = PhaseGenerating
	req := provider.Request{Options: s.options()}
	gen := s.gen
	s.mu.Unlock()

	adapter, cfg, err := s.src.Active(ctx)
	if err != nil {
		s.revert(gen, prev)
		return nil, provider.Request{}, 0, Snapshot{}, err
	}
	req.Model = cfg.Model
	return adapter, req, gen, prev, nil
}

// revert restores the pre-call state after a failed generation, unless the
// pipeline moved on in the meantime.
func (s *Service) revert(gen uint64, prev Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.snap = prev
}

// commit applies a mutation to the post-call state. Stale results (reset or
// restore happened mid-flight) are discarded.
func (s *Service) commit(gen uint64, apply func(*Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrStale
	}
	apply(&s.snap)
	return nil
}

// GenerateIdeas runs the ideation stage. With an empty seed it asks for
// fresh ideas; with a seed every idea is anchored to it. When appending, new
// story ids continue from the existing count and prior stories are kept.
func (s *Service) GenerateIdeas(ctx context.Context, seed string, count int, appendMore bool) ([]story.Story, error) {
	if count <= 0 {
		count = 6
	}
	adapter, req, gen, prev, err := s.beginGeneration(ctx, StageIdeation)
	if err != nil {
		return nil, err
	}

	startID := 0
	if appendMore {
		startID = len(prev.Stories)
	}

	var stories []story.Story
	if seed == "" {
		stories, err = adapter.GenerateStoryIdeas(ctx, req, count, startID)
	} else {
		stories, err = adapter.GenerateStoryIdeasFromSeed(ctx, seed, req, count, startID)
	}
	if err != nil {
		s.revert(gen, prev)
		s.log.Warn("ideation failed", "kind", provider.KindOf(err), "error", err)
		return nil, err
	}

	err = s.commit(gen, func(snap *Snapshot) {
		if appendMore {
			snap.Stories = append(snap.Stories, stories...)
		} else {
			snap.Stories = stories
			snap.SelectedStoryID = -1
		}
		snap.Seed = seed
		snap.Stage = StageStorySelection
		snap.Phase = PhaseIdle
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("ideas generated", "count", len(stories), "append", appendMore)
	return stories, nil
}

// SelectStory marks a story as the working story. If the story already has
// downstream results the stage jumps to its furthest completed point.
func (s *Service) SelectStory(id int) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := findStory(s.snap.Stories, id)
	if st == nil {
		return story.Story{}, provider.Errf(provider.KindValidation, "no story with id %d", id)
	}
	s.snap.SelectedStoryID = id
	switch {
	case st.HasPrompts():
		s.snap.Stage = StagePrompts
		s.snap.Phase = PhaseDone
	case st.HasScript():
		s.snap.Stage = StageScript
		s.snap.Phase = PhaseDone
	case st.HasExpansion():
		s.snap.Stage = StageExpansion
		s.snap.Phase = PhaseDone
	default:
		s.snap.Stage = StageStorySelection
		s.snap.Phase = PhaseIdle
	}
	return *st, nil
}

func findStory(stories []story.Story, id int) *story.Story {
	for i := range stories {
		if stories[i].ID == id {
			return &stories[i]
		}
	}
	return nil
}

// ExpandStory runs the expansion stage for the given story. A story that was
// already expanded returns its memoized expansion without a model call.
func (s *Service) ExpandStory(ctx context.Context, id int) (string, error) {
	s.mu.Lock()
	st := findStory(s.snap.Stories, id)
	if st == nil {
		s.mu.Unlock()
		return "", provider.Errf(provider.KindValidation, "no story with id %d", id)
	}
	if st.HasExpansion() {
		s.snap.SelectedStoryID = id
		s.snap.Stage = StageExpansion
		s.snap.Phase = PhaseDone
		expanded := st.ExpandedStory
		s.mu.Unlock()
		return expanded, nil
	}
	text := st.Content
	s.mu.Unlock()

	adapter, req, gen, prev, err := s.beginGeneration(ctx, StageExpansion)
	if err != nil {
		return "", err
	}
	expanded, err := adapter.ExpandStory(ctx, text, req)
	if err != nil {
		s.revert(gen, prev)
		s.log.Warn("expansion failed", "storyId", id, "kind", provider.KindOf(err), "error", err)
		return "", err
	}
	err = s.commit(gen, func(snap *Snapshot) {
		if st := findStory(snap.Stories, id); st != nil {
			st.ExpandedStory = expanded
		}
		snap.SelectedStoryID = id
		snap.Stage = StageExpansion
		snap.Phase = PhaseDone
	})
	if err != nil {
		return "", err
	}
	return expanded, nil
}

// CreateScript runs the script stage. Requires the story's expansion; a
// story with an existing script returns it memoized.
func (s *Service) CreateScript(ctx context.Context, id int) (string, error) {
	s.mu.Lock()
	st := findStory(s.snap.Stories, id)
	if st == nil {
		s.mu.Unlock()
		return "", provider.Errf(provider.KindValidation, "no story with id %d", id)
	}
	if st.HasScript() {
		s.snap.SelectedStoryID = id
		s.snap.Stage = StageScript
		s.snap.Phase = PhaseDone
		script := st.Script
		s.mu.Unlock()
		return script, nil
	}
	if !st.HasExpansion() {
		s.mu.Unlock()
		return "", provider.Errf(provider.KindValidation, "story %d has no expansion yet", id)
	}
	expanded := st.ExpandedStory
	s.mu.Unlock()

	adapter, req, gen, prev, err := s.beginGeneration(ctx, StageScript)
	if err != nil {
		return "", err
	}
	script, err := adapter.CreateScript(ctx, expanded, req)
	if err != nil {
		s.revert(gen, prev)
		s.log.Warn("script generation failed", "storyId", id, "kind", provider.KindOf(err), "error", err)
		return "", err
	}
	err = s.commit(gen, func(snap *Snapshot) {
		if st := findStory(snap.Stories, id); st != nil {
			st.Script = script
		}
		snap.SelectedStoryID = id
		snap.Stage = StageScript
		snap.Phase = PhaseDone
	})
	if err != nil {
		return "", err
	}
	return script, nil
}

// GeneratePrompts runs the visual prompt stage. Requires the story's script;
// existing prompts are returned memoized.
func (s *Service) GeneratePrompts(ctx context.Context, id int) ([]story.ScenePrompt, error) {
	s.mu.Lock()
	st := findStory(s.snap.Stories, id)
	if st == nil {
		s.mu.Unlock()
		return nil, provider.Errf(provider.KindValidation, "no story with id %d", id)
	}
	if st.HasPrompts() {
		s.snap.SelectedStoryID = id
		s.snap.Stage = StagePrompts
		s.snap.Phase = PhaseDone
		prompts := make([]story.ScenePrompt, len(st.Prompts))
		copy(prompts, st.Prompts)
		s.mu.Unlock()
		return prompts, nil
	}
	if !st.HasScript() {
		s.mu.Unlock()
		return nil, provider.Errf(provider.KindValidation, "story %d has no script yet", id)
	}
	script := st.Script
	s.mu.Unlock()

	adapter, req, gen, prev, err := s.beginGeneration(ctx, StagePrompts)
	if err != nil {
		return nil, err
	}
	prompts, err := adapter.GenerateVisualPrompts(ctx, script, req)
	if err != nil {
		s.revert(gen, prev)
		s.log.Warn("prompt generation failed", "storyId", id, "kind", provider.KindOf(err), "error", err)
		return nil, err
	}
	err = s.commit(gen, func(snap *Snapshot) {
		if st := findStory(snap.Stories, id); st != nil {
			st.Prompts = prompts
		}
		snap.SelectedStoryID = id
		snap.Stage = StagePrompts
		snap.Phase = PhaseDone
	})
	if err != nil {
		return nil, err
	}
	return prompts, nil
}

// SelectedStory returns the currently selected story, if any.
func (s *Service) SelectedStory() (story.Story, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.SelectedStoryID < 0 {
		return story.Story{}, false
	}
	st := findStory(s.snap.Stories, s.snap.SelectedStoryID)
	if st == nil {
		return story.Story{}, false
	}
	return *st, true
}

// UpdatePrompt replaces one scene prompt of the selected story (manual edit
// before image generation).
func (s *Service) UpdatePrompt(storyID, sceneNumber int, imagePrompt, videoPrompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := findStory(s.snap.Stories, storyID)
	if st == nil {
		return provider.Errf(provider.KindValidation, "no story with id %d", storyID)
	}
	for i := range st.Prompts {
		if st.Prompts[i].SceneNumber == sceneNumber {
			if imagePrompt != "" {
				st.Prompts[i].ImagePrompt = imagePrompt
			}
			if videoPrompt != "" {
				st.Prompts[i].VideoPrompt = videoPrompt
			}
			return nil
		}
	}
	return provider.Errf(provider.KindValidation, "story %d has no scene %d", storyID, sceneNumber)
}
