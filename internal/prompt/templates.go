// Package prompt renders the instruction text for every generation stage.
// All builders are pure string functions; vendor-specific request shaping
// (schemas, message roles) happens in the provider adapters.
package prompt

import (
	"fmt"
	"strings"
)

// AspectRatio is the target frame format for scripts and visual prompts.
type AspectRatio string

const (
	Landscape AspectRatio = "16:9"
	Portrait  AspectRatio = "9:16"
)

// Orientation returns the human word used inside templates.
func (a AspectRatio) Orientation() string {
	if a == Portrait {
		return "vertical"
	}
	return "horizontal"
}

// Valid reports whether a is one of the two supported ratios.
func (a AspectRatio) Valid() bool { return a == Landscape || a == Portrait }

// Options parameterizes every stage template.
type Options struct {
	Mood                  Mood
	Aspect                AspectRatio
	StyleDescription      string
	Character             string // locked cast description; empty = model invents one
	VietnameseAnnotations bool
}

// Role builds the system instruction shared by every call. The two rules
// later stages depend on — no dialogue anywhere, and repeating the locked
// cast description verbatim in every scene and prompt — live here and must
// appear in every rendered template.
func Role(o Options) string {
	var sb strings.Builder
	sb.WriteString("You are an animated short writer-director: grounded, emotionally rich everyday stories with a strong, logical twist.\n\n")
	sb.WriteString("GLOBAL RULES:\n")
	sb.WriteString("1. All generated content (story titles, story content, character descriptions, scene descriptions, prompts) MUST be in English.\n")
	if o.VietnameseAnnotations {
		sb.WriteString("2. After each piece of English text, you MUST provide a concise Vietnamese translation in parentheses. For example: \"STORY TITLE: The Last Coin (Đồng Xu Cuối Cùng)\".\n")
	} else {
		sb.WriteString("2. Do not add any translations or annotations in other languages.\n")
	}
	sb.WriteString("3. No dialogue anywhere. Everything is conveyed through action, light, blocking, and facial expression.\n")
	fmt.Fprintf(&sb, "4. Maintain a consistent visual style throughout: %s\n", styleOrDefault(o))
	sb.WriteString("5. Every scene and every prompt (image and video) must repeat the full character description verbatim once characters are locked.\n")
	if o.Mood.Name != "" {
		fmt.Fprintf(&sb, "\nNARRATIVE MOOD: %s", o.Mood.Name)
		if o.Mood.Direction != "" {
			fmt.Fprintf(&sb, " — %s", o.Mood.Direction)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func styleOrDefault(o Options) string {
	if o.StyleDescription != "" {
		return o.StyleDescription
	}
	return "polished 3D animation, ultra detailed, cinematic lighting, soft shadows, emotional realism."
}

// IdeaBatch renders the ideation instruction for count standalone
// micro-stories, each sized for a 60-90 second film.
func IdeaBatch(o Options, count int) string {
	var sb strings.Builder
	sb.WriteString(Role(o))
	fmt.Fprintf(&sb, "\nWORKFLOW STEP 1 — GENERATE %d ORIGINAL MICRO-STORIES\n\n", count)
	fmt.Fprintf(&sb, "Write %d standalone short stories, each designed for a 60-90 second film.\n", count)
	sb.WriteString(ideaRequirements)
	sb.WriteString(ideaFormat)
	return sb.String()
}

// IdeaBatchFromSeed renders the ideation instruction anchored to the user's
// seed idea; each story must be a distinct interpretation of it.
func IdeaBatchFromSeed(seed string, o Options, count int) string {
	var sb strings.Builder
	sb.WriteString(Role(o))
	fmt.Fprintf(&sb, "\nWORKFLOW STEP 1 — GENERATE %d ORIGINAL MICRO-STORIES FROM A SEED IDEA\n\n", count)
	sb.WriteString("The user has provided the following initial idea:\n---\n")
	sb.WriteString(strings.TrimSpace(seed))
	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "Write %d standalone short stories based on this seed idea. Each story must be a unique interpretation or expansion of the user's concept, designed for a 60-90 second film.\n", count)
	sb.WriteString(ideaRequirements)
	sb.WriteString(ideaFormat)
	return sb.String()
}

const ideaRequirements = `Each story must include:
- A very real-life problem (poverty, debt, betrayal, temptation, consequence, bad choices...).
- Action and psychological conflict as the core.
- A surprising but logical twist at the end.
- No dialogue; everything conveyed through action, light, blocking, and facial expression.
- Cinematic prose: concise, visual, evocative.
`

const ideaFormat = `
Format the output clearly. For each story, start with "STORY TITLE:" on one line, followed by the story content on the next lines. Separate each story with a line containing only "---".
`

// ExpandStory renders the expansion instruction: turn a selected idea into
// fuller cinematic prose without yet locking a cast or cutting scenes.
func ExpandStory(storyText string, o Options) string {
	var sb strings.Builder
	sb.WriteString(Role(o))
	sb.WriteString("\nWORKFLOW STEP 2 — EXPAND THE STORY\n\n")
	sb.WriteString("The user has selected the following story:\n---\n")
	sb.WriteString(strings.TrimSpace(storyText))
	sb.WriteString("\n---\n\n")
	sb.WriteString(`Expand this story into rich cinematic prose for a 60-90 second film. Deepen the protagonist's inner conflict, sharpen the twist, and describe settings with concrete sensory detail. Keep it as flowing prose; do not break it into numbered scenes yet. No dialogue; convey everything through action, light, blocking, and facial expression.
`)
	return sb.String()
}

// Script renders the cast-locking and scene-breakdown instruction. Two
// character modes: with a preselected character the model must adopt the
// given description verbatim; without one it must infer species and
// appearance from the narrative and emit a structured character block first.
func Script(expandedStory string, o Options) string {
	var sb strings.Builder
	sb.WriteString(Role(o))
	sb.WriteString("\nWORKFLOW STEP 3 — LOCK CAST & CREATE THE SHOOTING SCRIPT\n\n")
	sb.WriteString("Source story:\n---\n")
	sb.WriteString(strings.TrimSpace(expandedStory))
	sb.WriteString("\n---\n\nYour tasks are:\n")

	if o.Character != "" {
		sb.WriteString("1.  **LOCK THE CAST:** The protagonist below was preselected by the user. Adopt this description verbatim, word for word, as the locked character description. You may add minor supporting characters using the same schema.\n\n")
		sb.WriteString("PRESELECTED CHARACTER:\n")
		sb.WriteString(strings.TrimSpace(o.Character))
		sb.WriteString("\n\n")
	} else {
		sb.WriteString(`1.  **LOCK THE CAST:** Create a fixed character set for this story. Infer the protagonist's species and appearance from the narrative. For each character emit a structured block:
Character Name: [a fitting proper name]
Species: [inferred from the story]
Detailed Appearance: [body, face, fur/skin/hair, clothing, how light responds to them]
Visual Style Keywords: [keywords matching the global style]

`)
	}

	fmt.Fprintf(&sb, `2.  **CUT THE SCENES:** Break the story into 10-15 cinematic scenes.
    IMPORTANT: All scenes must be framed and described with a %s aspect ratio in mind (%s format).
    For each scene, provide:
    - Setting: place, time of day, lighting, atmosphere.
    - Characters: repeat the full, locked description verbatim for any character who appears.
    - Action: blocking, micro-movements, interactions, and lighting behavior.
    - Emotion/Lesson: internal psychology or implicit theme.

Structure the output clearly. First, list the characters under a "CHARACTERS" heading. Then, for each scene, use the format "SCENE [Number]:" followed by the details. Separate each scene with a line containing only "---".
`, o.Aspect, o.Aspect.Orientation())
	return sb.String()
}

// ScenePrompts renders the per-scene image/video prompt instruction. When
// wrapInScenesObject is true the model is told to return a single JSON
// object with a "scenes" array (the shape JSON-object response modes
// require); otherwise a bare JSON array.
func ScenePrompts(script string, o Options, wrapInScenesObject bool) string {
	format := fmt.Sprintf("%s %s", o.Aspect, o.Aspect.Orientation())
	var sb strings.Builder
	sb.WriteString(Role(o))
	fmt.Fprintf(&sb, "\nWORKFLOW STEP 4 — CREATE IMAGE & VIDEO PROMPTS (%s %s)\n\n",
		strings.ToUpper(o.Aspect.Orientation()), o.Aspect)
	sb.WriteString("Based on the following script, produce a separate image prompt and a matching motion video prompt for each scene.\n\nSCRIPT:\n---\n")
	sb.WriteString(strings.TrimSpace(script))
	sb.WriteString("\n---\n\nFollow these rules exactly:\n\n")

	fmt.Fprintf(&sb, `Image Prompt Rules:
- Format: %s.
- Style: %s
- Composition: cinematic depth; flexible mix of medium/close/wide shots.
- Mood: authentic, nuanced, not showy.
- IMPORTANT: Repeat the full locked character description verbatim every time characters appear in a prompt.

Video Prompt Rules (3-5 seconds):
- Format: %s.
- Smooth cinematic motion: camera pans, slow zooms, gentle dolly in/out.
- Micro-animation: subtle blinks, slight head turns, small gestures, natural footsteps.
- Lighting: soft, environment-aware; optional gentle flicker, sunlight shafts, or neon bleed.
- Emotion: subtle, truthful, never exaggerated.
- IMPORTANT: Repeat the full locked character description verbatim every time characters appear in a prompt.

`, format, styleOrDefault(o), format)

	if wrapInScenesObject {
		sb.WriteString(`You must return a single JSON object and nothing else — no prose, no markdown. The object must have a single key named "scenes" containing an array of objects with this structure:
`)
	} else {
		sb.WriteString(`You must return a JSON array of objects and nothing else — no prose, no markdown. Each object represents a scene with this structure:
`)
	}
	sb.WriteString(`{
  "scene_number": number,
  "scene_text": "The full original text of the scene from the script",
  "image_prompt": "The generated image prompt",
  "video_prompt": "The generated video prompt"
}
`)
	return sb.String()
}

// AnalyzeTarget selects what an image analysis call should extract.
type AnalyzeTarget struct {
	Style     bool
	Character bool
}

// AnalyzeImage renders the instruction for deriving a reusable style and/or
// character description from a reference image.
func AnalyzeImage(t AnalyzeTarget) string {
	var sb strings.Builder
	sb.WriteString("You are a visual development supervisor for an animation studio. Study the attached reference image.\n\n")
	if t.Style {
		sb.WriteString(`Describe its VISUAL STYLE as a single dense paragraph of reusable style keywords: medium, rendering technique, color palette, lighting character, texture, camera feel. Write it so it can be appended verbatim to image generation prompts.
`)
	}
	if t.Character {
		sb.WriteString(`Describe the main CHARACTER as a structured block:
Character Name: [invent a fitting proper name]
Species: [as seen]
Detailed Appearance: [body, face, fur/skin/hair, clothing, distinguishing marks, how light responds to them]
Visual Style Keywords: [keywords matching the image's rendering style]
Write it precisely enough that the character can be reproduced verbatim across many scenes.
`)
	}
	sb.WriteString("\nRespond in English only, with no preamble.\n")
	return sb.String()
}

// Translate renders the Vietnamese translation instruction. Formatting,
// line breaks, and headings must survive the translation.
func Translate(text string) string {
	var sb strings.Builder
	sb.WriteString(`Translate the following text into Vietnamese. Preserve all formatting exactly: line breaks, headings, "SCENE N:" markers, "---" separators, and list bullets. Translate only the natural-language content; keep proper names as they are. Return only the translated text.

---
`)
	sb.WriteString(strings.TrimSpace(text))
	sb.WriteString("\n---\n")
	return sb.String()
}

// Image decorates a raw scene image prompt with the aspect ratio hint that
// pure image endpoints (no system instruction channel) need inline.
func Image(imagePrompt string, aspect AspectRatio) string {
	return fmt.Sprintf("%s\n\nFormat: %s %s composition.", strings.TrimSpace(imagePrompt), aspect, aspect.Orientation())
}
