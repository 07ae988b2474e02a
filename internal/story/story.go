package story

// Story is one generated micro-story idea. Later pipeline stages attach
// their output to the same story in place: expansion fills ExpandedStory,
// scripting fills Script, prompt generation fills Prompts.
type Story struct {
	ID            int           `json:"id"`
	Title         string        `json:"title"`
	Content       string        `json:"content"`
	ExpandedStory string        `json:"expandedStory,omitempty"`
	Script        string        `json:"script,omitempty"`
	Prompts       []ScenePrompt `json:"prompts,omitempty"`
}

// ScenePrompt is the per-scene pair of image and video generation
// instructions extracted from a finished script. Immutable once created.
type ScenePrompt struct {
	SceneNumber int    `json:"scene_number"`
	SceneText   string `json:"scene_text"`
	ImagePrompt string `json:"image_prompt"`
	VideoPrompt string `json:"video_prompt"`
}

// HasExpansion reports whether the expansion stage completed for this story.
func (s *Story) HasExpansion() bool { return s.ExpandedStory != "" }

// HasScript reports whether the scripting stage completed for this story.
func (s *Story) HasScript() bool { return s.Script != "" }

// HasPrompts reports whether scene prompts exist for this story.
func (s *Story) HasPrompts() bool { return len(s.Prompts) > 0 }
