package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/minhvu/shortreel/internal/pipeline"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/story"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_GenerateIdeas(t *testing.T) {
	_, deps := newTestServer(t, &stubAdapter{}, nil)
	handler := mcpGenerateIdeas(deps)

	req := makeCallToolRequest("generate_story_ideas", map[string]interface{}{
		"seed":  "a lighthouse keeper's last night",
		"count": 3,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var stories []story.Story
	if err := json.Unmarshal([]byte(toolText(t, result)), &stories); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(stories) != 3 {
		t.Fatalf("expected 3 stories, got %d", len(stories))
	}

	// The tool drives the same pipeline the HTTP surface does.
	if snap := deps.Pipeline.Snapshot(); snap.Stage != pipeline.StageStorySelection {
		t.Errorf("stage = %s, want %s", snap.Stage, pipeline.StageStorySelection)
	}
}

func TestMCPTool_GenerateIdeas_NoActiveKey(t *testing.T) {
	authErr := provider.Errf(provider.KindAuth, "no active API key for provider \"gemini\"")
	_, deps := newTestServer(t, &stubAdapter{}, authErr)
	handler := mcpGenerateIdeas(deps)

	req := makeCallToolRequest("generate_story_ideas", map[string]interface{}{
		"count": 3,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if text := toolText(t, result); !strings.Contains(text, string(provider.KindAuth)) {
		t.Errorf("error text = %q, want it to carry the classified kind", text)
	}
}

func TestMCPTool_ExpandStory(t *testing.T) {
	_, deps := newTestServer(t, &stubAdapter{}, nil)

	if _, err := deps.Pipeline.GenerateIdeas(context.Background(), "", 2, false); err != nil {
		t.Fatalf("seeding pipeline: %v", err)
	}

	handler := mcpExpandStory(deps)
	req := makeCallToolRequest("expand_story", map[string]interface{}{
		"story_id": 1,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "EXPANDED" {
		t.Errorf("expansion = %q", text)
	}
}

func TestMCPTool_ExpandStory_MissingID(t *testing.T) {
	_, deps := newTestServer(t, &stubAdapter{}, nil)
	handler := mcpExpandStory(deps)

	result, err := handler(context.Background(), makeCallToolRequest("expand_story", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for missing story_id")
	}
	if text := toolText(t, result); !strings.Contains(text, "story_id") {
		t.Errorf("error text = %q, want it to name the missing argument", text)
	}
}

func TestMCPTool_Translate(t *testing.T) {
	_, deps := newTestServer(t, &stubAdapter{}, nil)
	handler := mcpTranslate(deps)

	req := makeCallToolRequest("translate_text", map[string]interface{}{
		"text": "the rain keeps falling",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "đã dịch" {
		t.Errorf("translation = %q", text)
	}
}

func TestMCPResource_State(t *testing.T) {
	_, deps := newTestServer(t, &stubAdapter{}, nil)

	if _, err := deps.Pipeline.GenerateIdeas(context.Background(), "", 2, false); err != nil {
		t.Fatalf("seeding pipeline: %v", err)
	}

	handler := mcpResourceState(deps)
	req := makeReadResourceRequest("pipeline://state")

	contents, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "pipeline://state" {
		t.Errorf("uri = %q", tc.URI)
	}

	var snap pipeline.Snapshot
	if err := json.Unmarshal([]byte(tc.Text), &snap); err != nil {
		t.Fatalf("failed to parse state JSON: %v", err)
	}
	if snap.Stage != pipeline.StageStorySelection {
		t.Errorf("stage = %s, want %s", snap.Stage, pipeline.StageStorySelection)
	}
	if len(snap.Stories) != 2 {
		t.Errorf("stories = %d, want 2", len(snap.Stories))
	}
}
