// Package imagequeue runs batch scene image generation with bounded
// concurrency. Each scene moves through idle, queued, generating, then
// success or error; failures never affect sibling scenes.
package imagequeue

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/story"
)

// Status is the per-scene generation state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// SceneImage is the result slot for one scene.
type SceneImage struct {
	SceneNumber int    `json:"sceneNumber"`
	Status      Status `json:"status"`
	Image       []byte `json:"-"`
	MimeType    string `json:"mimeType,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"errorKind,omitempty"`
}

// Generator renders one image. Satisfied by the provider adapters.
type Generator interface {
	GenerateImage(ctx context.Context, imagePrompt string, aspect prompt.AspectRatio) ([]byte, error)
}

// Queue tracks scene image state across batch runs. A Queue belongs to one
// story's prompt set; starting work on a different story needs a new Queue.
type Queue struct {
	workers int
	log     *slog.Logger

	mu     sync.Mutex
	scenes map[int]*SceneImage
}

// New creates a queue with the given worker bound. Non-positive bounds fall
// back to 4.
func New(workers int, log *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 4
	}
	return &Queue{workers: workers, log: log, scenes: make(map[int]*SceneImage)}
}

// Run generates images for the requested scenes. Scenes already in success
// keep their image and are skipped, so a re-run fills only the gaps. All
// accepted scenes are marked queued before any generation starts. Run
// returns once every accepted scene is terminal; per-scene failures are
// recorded, not returned.
func (q *Queue) Run(ctx context.Context, gen Generator, prompts []story.ScenePrompt, aspect prompt.AspectRatio, sceneNumbers []int) error {
	byNumber := make(map[int]story.ScenePrompt, len(prompts))
	for _, p := range prompts {
		byNumber[p.SceneNumber] = p
	}
	if len(sceneNumbers) == 0 {
		for n := range byNumber {
			sceneNumbers = append(sceneNumbers, n)
		}
		sort.Ints(sceneNumbers)
	}

	var accepted []story.ScenePrompt
	q.mu.Lock()
	for _, n := range sceneNumbers {
		p, ok := byNumber[n]
		if !ok {
			q.mu.Unlock()
			return provider.Errf(provider.KindValidation, "no scene %d in the current prompt set", n)
		}
		if sc := q.scenes[n]; sc != nil && sc.Status == StatusSuccess {
			continue
		}
		q.scenes[n] = &SceneImage{SceneNumber: n, Status: StatusQueued}
		accepted = append(accepted, p)
	}
	q.mu.Unlock()

	if len(accepted) == 0 {
		return nil
	}
	q.log.Info("batch image run", "scenes", len(accepted), "workers", q.workers)

	g := &errgroup.Group{}
	g.SetLimit(q.workers)
	for _, p := range accepted {
		g.Go(func() error {
			q.generate(ctx, gen, p, aspect)
			return nil
		})
	}
	return g.Wait()
}

// Regenerate re-runs a single scene unconditionally, replacing any prior
// result.
func (q *Queue) Regenerate(ctx context.Context, gen Generator, p story.ScenePrompt, aspect prompt.AspectRatio) SceneImage {
	q.mu.Lock()
	q.scenes[p.SceneNumber] = &SceneImage{SceneNumber: p.SceneNumber, Status: StatusQueued}
	q.mu.Unlock()
	q.generate(ctx, gen, p, aspect)
	return q.Scene(p.SceneNumber)
}

func (q *Queue) generate(ctx context.Context, gen Generator, p story.ScenePrompt, aspect prompt.AspectRatio) {
	q.setStatus(p.SceneNumber, StatusGenerating)
	data, err := gen.GenerateImage(ctx, p.ImagePrompt, aspect)

	q.mu.Lock()
	defer q.mu.Unlock()
	sc := q.scenes[p.SceneNumber]
	if sc == nil {
		// The queue was cleared while this scene was in flight: a new story
		// was selected or the pipeline was reset. Discard the late result.
		q.log.Info("dropping image for cleared scene", "scene", p.SceneNumber)
		return
	}
	if err != nil {
		sc.Status = StatusError
		sc.Error = err.Error()
		sc.ErrorKind = string(provider.KindOf(err))
		q.log.Warn("scene image failed", "scene", p.SceneNumber, "kind", sc.ErrorKind, "error", err)
		return
	}
	sc.Status = StatusSuccess
	sc.Image = data
	sc.MimeType = "image/png"
	sc.Error = ""
	sc.ErrorKind = ""
}

func (q *Queue) setStatus(sceneNumber int, s Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if sc := q.scenes[sceneNumber]; sc != nil {
		sc.Status = s
	}
}

// Scene returns a copy of one scene's slot. Unknown scenes read as idle.
func (q *Queue) Scene(sceneNumber int) SceneImage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if sc, ok := q.scenes[sceneNumber]; ok {
		return *sc
	}
	return SceneImage{SceneNumber: sceneNumber, Status: StatusIdle}
}

// Snapshot returns all slots ordered by scene number.
func (q *Queue) Snapshot() []SceneImage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]SceneImage, 0, len(q.scenes))
	for _, sc := range q.scenes {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out
}

// Clear drops all slots (new story selected).
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.scenes = make(map[int]*SceneImage)
}
