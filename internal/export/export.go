// Package export renders pipeline artifacts into downloadable formats:
// plain-text dumps of stories, scripts, and prompts, and a spreadsheet CSV
// of the scene prompt table.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/story"
)

// utf8BOM makes spreadsheet applications detect the encoding instead of
// mangling non-ASCII text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Delimiter is the CSV field separator. Semicolon matches locales where
// Excel treats comma as a decimal separator.
type Delimiter rune

const (
	Comma     Delimiter = ','
	Semicolon Delimiter = ';'
)

// ParseDelimiter maps the API parameter to a Delimiter.
func ParseDelimiter(s string) (Delimiter, error) {
	switch s {
	case "", "comma":
		return Comma, nil
	case "semicolon":
		return Semicolon, nil
	default:
		return 0, provider.Errf(provider.KindValidation, "unknown CSV delimiter %q (use comma or semicolon)", s)
	}
}

// StoryText renders a story with whatever stages it has completed.
func StoryText(st story.Story) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "STORY TITLE: %s\n\n%s\n", st.Title, strings.TrimSpace(st.Content))
	if st.HasExpansion() {
		sb.WriteString("\n=== EXPANDED STORY ===\n\n")
		sb.WriteString(strings.TrimSpace(st.ExpandedStory))
		sb.WriteString("\n")
	}
	if st.HasScript() {
		sb.WriteString("\n=== SCRIPT ===\n\n")
		sb.WriteString(strings.TrimSpace(st.Script))
		sb.WriteString("\n")
	}
	if st.HasPrompts() {
		sb.WriteString("\n=== SCENE PROMPTS ===\n\n")
		sb.WriteString(PromptsText(st.Prompts))
	}
	return sb.String()
}

// PromptsText renders scene prompts as a readable dump, one block per scene.
func PromptsText(prompts []story.ScenePrompt) string {
	var sb strings.Builder
	for i, p := range prompts {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&sb, "SCENE %d:\n%s\n\nIMAGE PROMPT:\n%s\n\nVIDEO PROMPT:\n%s\n",
			p.SceneNumber, strings.TrimSpace(p.SceneText), strings.TrimSpace(p.ImagePrompt), strings.TrimSpace(p.VideoPrompt))
	}
	return sb.String()
}

// PromptsCSV renders the scene prompt table as CSV: one row per scene with
// scene number, scene text, image prompt, and video prompt. The output
// starts with a UTF-8 BOM.
func PromptsCSV(prompts []story.ScenePrompt, d Delimiter) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Comma = rune(d)
	if err := w.Write([]string{"Scene", "Scene Text", "Image Prompt", "Video Prompt"}); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	for _, p := range prompts {
		row := []string{strconv.Itoa(p.SceneNumber), p.SceneText, p.ImagePrompt, p.VideoPrompt}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing scene %d: %w", p.SceneNumber, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV: %w", err)
	}
	return buf.Bytes(), nil
}
