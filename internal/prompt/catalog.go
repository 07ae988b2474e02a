package prompt

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Mood names a narrative mood and the direction injected into templates.
type Mood struct {
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"`
}

// Style is a reusable visual style description.
type Style struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ModelInfo describes one catalog entry with its capability flags.
type ModelInfo struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Provider        string `yaml:"provider"`
	Vision          bool   `yaml:"vision"`
	ImageGeneration bool   `yaml:"image_generation"`
}

// Catalog holds the embedded moods, predefined styles, and model capability
// table. It is loaded once at startup; lookups never hit the filesystem.
type Catalog struct {
	moods  []Mood
	styles []Style
	models []ModelInfo
}

// LoadCatalog parses the embedded YAML data files.
func LoadCatalog() (*Catalog, error) {
	c := &Catalog{}

	var moodDoc struct {
		Moods []Mood `yaml:"moods"`
	}
	if err := unmarshalData("data/moods.yaml", &moodDoc); err != nil {
		return nil, err
	}
	c.moods = moodDoc.Moods

	var styleDoc struct {
		Styles []Style `yaml:"styles"`
	}
	if err := unmarshalData("data/styles.yaml", &styleDoc); err != nil {
		return nil, err
	}
	c.styles = styleDoc.Styles

	var modelDoc struct {
		Models []ModelInfo `yaml:"models"`
	}
	if err := unmarshalData("data/models.yaml", &modelDoc); err != nil {
		return nil, err
	}
	c.models = modelDoc.Models

	return c, nil
}

func unmarshalData(path string, out any) error {
	data, err := dataFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading embedded %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Moods returns all named moods in catalog order.
func (c *Catalog) Moods() []Mood { return c.moods }

// Mood looks up a mood by name. Unknown names return ok=false; callers fall
// back to a bare mood name in the template.
func (c *Catalog) Mood(name string) (Mood, bool) {
	for _, m := range c.moods {
		if m.Name == name {
			return m, true
		}
	}
	return Mood{}, false
}

// Styles returns the predefined visual styles.
func (c *Catalog) Styles() []Style { return c.styles }

// Style looks up a predefined style by name.
func (c *Catalog) Style(name string) (Style, bool) {
	for _, s := range c.styles {
		if s.Name == name {
			return s, true
		}
	}
	return Style{}, false
}

// Models returns catalog entries, optionally filtered by provider.
func (c *Catalog) Models(provider string) []ModelInfo {
	if provider == "" {
		return c.models
	}
	var out []ModelInfo
	for _, m := range c.models {
		if m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// Model looks up a model by id.
func (c *Catalog) Model(id string) (ModelInfo, bool) {
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// SupportsVision reports whether the model can accept image input. Unknown
// models are assumed not to.
func (c *Catalog) SupportsVision(id string) bool {
	m, ok := c.Model(id)
	return ok && m.Vision
}
