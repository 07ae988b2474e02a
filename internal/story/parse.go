package story

import (
	"encoding/json"
	"fmt"
	"strings"
)

const titleMarker = "STORY TITLE:"

// ParseStories extracts stories from a free-text model response. Blocks are
// separated by a line consisting solely of "---"; a block counts as a story
// only if it contains a line beginning (case-insensitively) with
// "STORY TITLE:". Blocks without a title line are discarded. IDs are assigned
// by block order starting at startID, so appending to an existing list of
// length L passes startID=L and gets contiguous ids.
func ParseStories(text string, startID int) []Story {
	var stories []Story
	for _, block := range splitBlocks(text) {
		title, content, ok := parseBlock(block)
		if !ok {
			continue
		}
		stories = append(stories, Story{
			ID:      startID + len(stories),
			Title:   title,
			Content: content,
		})
	}
	return stories
}

func splitBlocks(text string) []string {
	var blocks []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "---" {
			if len(cur) > 0 {
				blocks = append(blocks, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	return blocks
}

func parseBlock(block string) (title, content string, ok bool) {
	var contentLines []string
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(trimmed), titleMarker) {
			if title == "" {
				title = strings.TrimSpace(trimmed[len(titleMarker):])
				ok = true
			}
			continue
		}
		contentLines = append(contentLines, line)
	}
	if !ok {
		return "", "", false
	}
	return title, strings.TrimSpace(strings.Join(contentLines, "\n")), true
}

// ParseScenePrompts decodes the strict-JSON scene prompt batch returned by a
// JSON-mode call. Both vendor shapes are accepted: a bare array of scene
// objects, or an object with a "scenes" array. Markdown code fences around
// the payload are stripped first. Anything else is a hard failure; there is
// no partial recovery.
func ParseScenePrompts(raw string) ([]ScenePrompt, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, fmt.Errorf("empty scene prompt response")
	}

	var prompts []ScenePrompt
	if err := json.Unmarshal([]byte(cleaned), &prompts); err == nil {
		return validateScenes(prompts)
	}

	var wrapped struct {
		Scenes []ScenePrompt `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
		return nil, fmt.Errorf("parsing scene prompt JSON: %w", err)
	}
	if wrapped.Scenes == nil {
		return nil, fmt.Errorf("scene prompt response has no scenes array")
	}
	return validateScenes(wrapped.Scenes)
}

func validateScenes(prompts []ScenePrompt) ([]ScenePrompt, error) {
	if len(prompts) == 0 {
		return nil, fmt.Errorf("scene prompt response contains no scenes")
	}
	for i, p := range prompts {
		if p.ImagePrompt == "" || p.VideoPrompt == "" {
			return nil, fmt.Errorf("scene %d is missing image or video prompt", i+1)
		}
	}
	return prompts, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
