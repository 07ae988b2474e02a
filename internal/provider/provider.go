// Package provider defines the uniform adapter contract both vendor clients
// implement, and the single factory that selects one at call time. Call
// sites never branch on provider names.
package provider

import (
	"context"
	"fmt"

	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/story"
)

// Name identifies a vendor.
type Name string

const (
	Gemini Name = "gemini"
	OpenAI Name = "openai"
)

// Valid reports whether n names a known vendor.
func (n Name) Valid() bool { return n == Gemini || n == OpenAI }

// Request carries the shared per-call parameters every stage needs: which
// model to use and the template options (mood, aspect ratio, style, locked
// character, annotation flag).
type Request struct {
	Model   string
	Options prompt.Options
}

// Adapter is the uniform interface over one vendor. All calls are blocking
// with ctx; failures are classified *Error values (see errors.go).
type Adapter interface {
	Name() Name

	// GenerateStoryIdeas produces count fresh story ideas. Ids start at
	// startID so "load more" continues an existing list without collisions.
	GenerateStoryIdeas(ctx context.Context, req Request, count, startID int) ([]story.Story, error)

	// GenerateStoryIdeasFromSeed is GenerateStoryIdeas anchored to a user
	// seed idea. An empty seed is a validation error.
	GenerateStoryIdeasFromSeed(ctx context.Context, seed string, req Request, count, startID int) ([]story.Story, error)

	// ExpandStory turns a selected idea into expanded cinematic prose.
	ExpandStory(ctx context.Context, storyText string, req Request) (string, error)

	// CreateScript locks the cast and cuts the expanded story into a
	// shooting script ("CHARACTERS" block, "SCENE N" blocks, "---" lines).
	CreateScript(ctx context.Context, expandedStory string, req Request) (string, error)

	// GenerateVisualPrompts produces one image+video prompt pair per scene
	// in a single strict-JSON call.
	GenerateVisualPrompts(ctx context.Context, script string, req Request) ([]story.ScenePrompt, error)

	// AnalyzeImage derives a style and/or character description from a
	// reference image.
	AnalyzeImage(ctx context.Context, image []byte, mimeType string, target prompt.AnalyzeTarget, req Request) (string, error)

	// GenerateImage renders one scene image, returned as raw bytes.
	GenerateImage(ctx context.Context, imagePrompt string, aspect prompt.AspectRatio) ([]byte, error)

	// Translate returns the Vietnamese translation of text with formatting
	// preserved.
	Translate(ctx context.Context, text string, req Request) (string, error)

	// ValidateKey probes the vendor with the candidate secret. A nil error
	// means the secret authenticates.
	ValidateKey(ctx context.Context, secret string) error
}

// Config selects the adapter and model for every subsequent call. Persisted
// under the aiConfig settings key.
type Config struct {
	Provider Name   `json:"provider"`
	Model    string `json:"model"`
}

// Factory builds adapters from configuration. Dispatch on the provider enum
// happens here and nowhere else.
type Factory struct {
	catalog *prompt.Catalog
	builder map[Name]func(secret string) Adapter
}

// NewFactory creates an empty factory; vendor constructors register
// themselves via Register at startup.
func NewFactory(catalog *prompt.Catalog) *Factory {
	return &Factory{
		catalog: catalog,
		builder: make(map[Name]func(string) Adapter),
	}
}

// Register installs the constructor for one vendor.
func (f *Factory) Register(name Name, build func(secret string) Adapter) {
	f.builder[name] = build
}

// For returns an adapter for the configured provider bound to the given
// secret.
func (f *Factory) For(cfg Config, secret string) (Adapter, error) {
	build, ok := f.builder[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return build(secret), nil
}

// Catalog exposes the shared model capability table.
func (f *Factory) Catalog() *prompt.Catalog { return f.catalog }

// Providers lists the registered vendor names.
func (f *Factory) Providers() []Name {
	out := make([]Name, 0, len(f.builder))
	for n := range f.builder {
		out = append(out, n)
	}
	return out
}
