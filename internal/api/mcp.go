package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/minhvu/shortreel/internal/provider"
)

// NewMCPServer creates an MCP server exposing the pipeline stages as tools,
// so agent clients can drive the same workflow the HTTP API does.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"shortreel",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("shortreel — staged short-film writing pipeline: ideas, expansion, script, and per-scene visual prompts."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_story_ideas",
			mcp.WithDescription("Generate a batch of original micro-story ideas, optionally anchored to a seed idea."),
			mcp.WithString("seed", mcp.Description("Optional seed idea to anchor every story to")),
			mcp.WithNumber("count", mcp.Description("How many stories to generate (default 6)")),
			mcp.WithBoolean("append", mcp.Description("Append to the current list instead of replacing it")),
		),
		mcpGenerateIdeas(deps),
	)

	s.AddTool(
		mcp.NewTool("expand_story",
			mcp.WithDescription("Expand one generated story into rich cinematic prose."),
			mcp.WithNumber("story_id", mcp.Description("Id of the story to expand"), mcp.Required()),
		),
		mcpExpandStory(deps),
	)

	s.AddTool(
		mcp.NewTool("create_script",
			mcp.WithDescription("Lock the cast and cut the expanded story into a 10-15 scene shooting script."),
			mcp.WithNumber("story_id", mcp.Description("Id of the story to script"), mcp.Required()),
		),
		mcpCreateScript(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_scene_prompts",
			mcp.WithDescription("Produce a JSON image prompt and video prompt pair for every scene of the script."),
			mcp.WithNumber("story_id", mcp.Description("Id of the scripted story"), mcp.Required()),
		),
		mcpGeneratePrompts(deps),
	)

	s.AddTool(
		mcp.NewTool("translate_text",
			mcp.WithDescription("Translate text into Vietnamese, preserving formatting."),
			mcp.WithString("text", mcp.Description("Text to translate"), mcp.Required()),
		),
		mcpTranslate(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"pipeline://state",
			"Pipeline State",
			mcp.WithResourceDescription("Current pipeline snapshot as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceState(deps),
	)

	return s
}

func mcpGenerateIdeas(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		seed := req.GetString("seed", "")
		count := req.GetInt("count", 6)
		appendMore := req.GetBool("append", false)

		stories, err := deps.Pipeline.GenerateIdeas(ctx, seed, count, appendMore)
		if err != nil {
			return mcpError(fmt.Sprintf("ideation failed (%s): %v", provider.KindOf(err), err)), nil
		}
		b, err := json.Marshal(stories)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stories: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExpandStory(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("story_id")
		if err != nil {
			return mcpError("story_id is required"), nil
		}
		expanded, err := deps.Pipeline.ExpandStory(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("expansion failed (%s): %v", provider.KindOf(err), err)), nil
		}
		return mcpText(expanded), nil
	}
}

func mcpCreateScript(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("story_id")
		if err != nil {
			return mcpError("story_id is required"), nil
		}
		script, err := deps.Pipeline.CreateScript(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("script generation failed (%s): %v", provider.KindOf(err), err)), nil
		}
		return mcpText(script), nil
	}
}

func mcpGeneratePrompts(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("story_id")
		if err != nil {
			return mcpError("story_id is required"), nil
		}
		prompts, err := deps.Pipeline.GeneratePrompts(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("prompt generation failed (%s): %v", provider.KindOf(err), err)), nil
		}
		b, err := json.Marshal(prompts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal prompts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpTranslate(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		adapter, cfg, err := deps.Source.Active(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("no usable provider (%s): %v", provider.KindOf(err), err)), nil
		}
		translated, err := adapter.Translate(ctx, text, provider.Request{Model: cfg.Model})
		if err != nil {
			return mcpError(fmt.Sprintf("translation failed (%s): %v", provider.KindOf(err), err)), nil
		}
		return mcpText(translated), nil
	}
}

func mcpResourceState(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Pipeline.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pipeline state: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
