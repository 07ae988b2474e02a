// Package openai implements the provider adapter over the OpenAI REST API:
// chat completions with JSON-mode output, data-URL vision input, and the
// images endpoint for scene renders.
package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second

	imageModel = "gpt-image-1"
)

// Client calls the OpenAI API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates an OpenAI adapter bound to the given API key.
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

func (c *Client) Name() provider.Name { return provider.OpenAI }

// --- wire types ---

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage content is either a plain string or, for vision calls, an
// array of typed content parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type imageGenRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n,omitempty"`
	Size   string `json:"size,omitempty"`
}

type imageGenResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

// --- transport ---

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if c.apiKey == "" {
		return provider.Errf(provider.KindAuth, "OpenAI API key is not set")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.Wrap(provider.KindNetwork, err, "calling OpenAI API")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Wrap(provider.KindNetwork, err, "reading OpenAI response")
	}

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			return provider.Errf(provider.KindNetwork, "OpenAI API error (HTTP %d): %s", resp.StatusCode, envelope.Error.Message)
		}
		return provider.Errf(provider.KindNetwork, "OpenAI API returned HTTP %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return provider.Wrap(provider.KindShape, err, "decoding OpenAI response")
	}
	return nil
}

func (c *Client) chat(ctx context.Context, model, system string, user any, jsonMode bool) (string, error) {
	req := chatRequest{
		Model:       model,
		Temperature: 0.7,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", provider.Errf(provider.KindShape, "OpenAI response contains no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- adapter operations ---

func (c *Client) GenerateStoryIdeas(ctx context.Context, req provider.Request, count, startID int) ([]story.Story, error) {
	text, err := c.chat(ctx, req.Model, prompt.Role(req.Options), prompt.IdeaBatch(req.Options, count), false)
	if err != nil {
		return nil, err
	}
	return parsedStories(text, startID)
}

func (c *Client) GenerateStoryIdeasFromSeed(ctx context.Context, seed string, req provider.Request, count, startID int) ([]story.Story, error) {
	if strings.TrimSpace(seed) == "" {
		return nil, provider.Errf(provider.KindValidation, "seed idea is empty")
	}
	text, err := c.chat(ctx, req.Model, prompt.Role(req.Options), prompt.IdeaBatchFromSeed(seed, req.Options, count), false)
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
	return c.chat(ctx, req.Model, prompt.Role(req.Options), prompt.ExpandStory(storyText, req.Options), false)
}

func (c *Client) CreateScript(ctx context.Context, expandedStory string, req provider.Request) (string, error) {
	return c.chat(ctx, req.Model, prompt.Role(req.Options), prompt.Script(expandedStory, req.Options), false)
}

func (c *Client) GenerateVisualPrompts(ctx context.Context, script string, req provider.Request) ([]story.ScenePrompt, error) {
	// JSON-object mode cannot return a bare array; the template asks for a
	// wrapping "scenes" object instead.
	text, err := c.chat(ctx, req.Model, prompt.Role(req.Options), prompt.ScenePrompts(script, req.Options, true), true)
	if err != nil {
		return nil, err
	}
	prompts, err := story.ParseScenePrompts(text)
	if err != nil {
		return nil, provider.Wrap(provider.KindShape, err, "OpenAI scene prompt response")
	}
	return prompts, nil
}

func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mimeType string, target prompt.AnalyzeTarget, req provider.Request) (string, error) {
	if len(image) == 0 {
		return "", provider.Errf(provider.KindValidation, "image is empty")
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	user := []contentPart{
		{Type: "text", Text: prompt.AnalyzeImage(target)},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
	}
	return c.chat(ctx, req.Model, "You are a visual development supervisor.", user, false)
}

func (c *Client) GenerateImage(ctx context.Context, imagePrompt string, aspect prompt.AspectRatio) ([]byte, error) {
	size := "1536x1024"
	if aspect == prompt.Portrait {
		size = "1024x1536"
	}

	var resp imageGenResponse
	err := c.post(ctx, "/images/generations", imageGenRequest{
		Model:  imageModel,
		Prompt: prompt.Image(imagePrompt, aspect),
		N:      1,
		Size:   size,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, provider.Errf(provider.KindShape, "OpenAI response contains no image data")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, provider.Wrap(provider.KindShape, err, "decoding image data")
	}
	return data, nil
}

func (c *Client) Translate(ctx context.Context, text string, req provider.Request) (string, error) {
	return c.chat(ctx, req.Model, "You are a careful English-to-Vietnamese translator.", prompt.Translate(text), false)
}

// ValidateKey lists models with the candidate secret; a 200 means the key
// authenticates without spending tokens.
func (c *Client) ValidateKey(ctx context.Context, secret string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.Wrap(provider.KindNetwork, err, "calling OpenAI API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.Errf(provider.KindKeyInvalid, "OpenAI rejected the key (HTTP %d)", resp.StatusCode)
	}
	return nil
}
