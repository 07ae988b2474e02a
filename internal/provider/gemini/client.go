// Package gemini implements the provider adapter over the Gemini REST API
// (generateContent with structured-output schemas and inline image parts).
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/story"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 120 * time.Second

	// probeModel handles key validation; imageModel handles scene renders.
	probeModel = "gemini-2.5-flash"
	imageModel = "gemini-2.5-flash-image"
)

// Client calls the Gemini generateContent API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a Gemini adapter bound to the given API key.
func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Name() provider.Name { return provider.Gemini }

// --- wire types ---

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature        float64         `json:"temperature,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseSchema     json.RawMessage `json:"responseSchema,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// scenePromptSchema is the structured-output schema for step 4. Gemini
// returns a bare array of scene objects.
var scenePromptSchema = json.RawMessage(`{
	"type": "ARRAY",
	"items": {
		"type": "OBJECT",
		"properties": {
			"scene_number": {"type": "INTEGER"},
			"scene_text": {"type": "STRING"},
			"image_prompt": {"type": "STRING"},
			"video_prompt": {"type": "STRING"}
		},
		"required": ["scene_number", "scene_text", "image_prompt", "video_prompt"]
	}
}`)

// --- transport ---

func (c *Client) generate(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	if c.apiKey == "" {
		return nil, provider.Errf(provider.KindAuth, "Gemini API key is not set")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.Wrap(provider.KindNetwork, err, "calling Gemini API")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Wrap(provider.KindNetwork, err, "reading Gemini response")
	}

	var out generateResponse
	if resp.StatusCode != http.StatusOK {
		// Attach the vendor message when the error envelope parses.
		if json.Unmarshal(respBody, &out) == nil && out.Error != nil {
			return nil, provider.Errf(provider.KindNetwork, "Gemini API error (HTTP %d): %s", resp.StatusCode, out.Error.Message)
		}
		return nil, provider.Errf(provider.KindNetwork, "Gemini API returned HTTP %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, provider.Wrap(provider.KindShape, err, "decoding Gemini response")
	}
	return &out, nil
}

// text extracts the concatenated text parts of the first candidate.
func (r *generateResponse) text() (string, error) {
	if len(r.Candidates) == 0 {
		return "", provider.Errf(provider.KindShape, "Gemini response contains no candidates")
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", provider.Errf(provider.KindShape, "Gemini response contains no text")
	}
	return sb.String(), nil
}

func (c *Client) generateText(ctx context.Context, model, system, user string, cfg *generationConfig) (string, error) {
	resp, err := c.generate(ctx, model, generateRequest{
		Contents:          []content{{Parts: []part{{Text: user}}}},
		SystemInstruction: &content{Parts: []part{{Text: system}}},
		GenerationConfig:  cfg,
	})
	if err != nil {
		return "", err
	}
	return resp.text()
}

// --- adapter operations ---

func (c *Client) GenerateStoryIdeas(ctx context.Context, req provider.Request, count, startID int) ([]story.Story, error) {
	text, err := c.generateText(ctx, req.Model,
		prompt.Role(req.Options),
		prompt.IdeaBatch(req.Options, count),
		&generationConfig{Temperature: 0.8})
	if err != nil {
		return nil, err
	}
	return parsedStories(text, startID)
}

func (c *Client) GenerateStoryIdeasFromSeed(ctx context.Context, seed string, req provider.Request, count, startID int) ([]story.Story, error) {
	if strings.TrimSpace(seed) == "" {
		return nil, provider.Errf(provider.KindValidation, "seed idea is empty")
	}
	text, err := c.generateText(ctx, req.Model,
		prompt.Role(req.Options),
		prompt.IdeaBatchFromSeed(seed, req.Options, count),
		&generationConfig{Temperature: 0.8})
	if err != nil {
		return nil, err
	}
	return parsedStories(text, startID)
}

func parsedStories(text string, startID int) ([]story.Story, error) {
	stories := story.ParseStories(text, startID)
	if len(stories) == 0 {
		return nil, provider.Errf(provider.KindShape, "no STORY TITLE blocks found in response")
	}
	return stories, nil
}

func (c *Client) ExpandStory(ctx context.Context, storyText string, req provider.Request) (string, error) {
	return c.generateText(ctx, req.Model,
		prompt.Role(req.Options),
		prompt.ExpandStory(storyText, req.Options),
		&generationConfig{Temperature: 0.7})
}

func (c *Client) CreateScript(ctx context.Context, expandedStory string, req provider.Request) (string, error) {
	return c.generateText(ctx, req.Model,
		prompt.Role(req.Options),
		prompt.Script(expandedStory, req.Options),
		&generationConfig{Temperature: 0.7})
}

func (c *Client) GenerateVisualPrompts(ctx context.Context, script string, req provider.Request) ([]story.ScenePrompt, error) {
	text, err := c.generateText(ctx, req.Model,
		prompt.Role(req.Options),
		prompt.ScenePrompts(script, req.Options, false),
		&generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   scenePromptSchema,
		})
	if err != nil {
		return nil, err
	}
	prompts, err := story.ParseScenePrompts(text)
	if err != nil {
		return nil, provider.Wrap(provider.KindShape, err, "Gemini scene prompt response")
	}
	return prompts, nil
}

func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mimeType string, target prompt.AnalyzeTarget, req provider.Request) (string, error) {
	if len(image) == 0 {
		return "", provider.Errf(provider.KindValidation, "image is empty")
	}
	resp, err := c.generate(ctx, req.Model, generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(image),
			}},
			{Text: prompt.AnalyzeImage(target)},
		}}},
	})
	if err != nil {
		return "", err
	}
	return resp.text()
}

func (c *Client) GenerateImage(ctx context.Context, imagePrompt string, aspect prompt.AspectRatio) ([]byte, error) {
	resp, err := c.generate(ctx, imageModel, generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt.Image(imagePrompt, aspect)}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	})
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, provider.Wrap(provider.KindShape, err, "decoding image data")
				}
				return data, nil
			}
		}
	}
	return nil, provider.Errf(provider.KindShape, "Gemini response contains no image data")
}

func (c *Client) Translate(ctx context.Context, text string, req provider.Request) (string, error) {
	return c.generateText(ctx, req.Model,
		"You are a careful English-to-Vietnamese translator.",
		prompt.Translate(text),
		&generationConfig{Temperature: 0.2})
}

// ValidateKey performs a minimal completion against the cheapest model. Any
// well-formed completion means the key authenticates.
func (c *Client) ValidateKey(ctx context.Context, secret string) error {
	probe := &Client{apiKey: secret, baseURL: c.baseURL, httpClient: c.httpClient}
	_, err := probe.generateText(ctx, probeModel, "Reply with OK.", "ping", nil)
	if err != nil {
		return provider.Wrap(provider.KindKeyInvalid, err, "Gemini key validation failed")
	}
	return nil
}
