// Package genai is the boundary to the external generative AI service.
// It exposes typed operations for document analysis, speech synthesis
// and image generation, and translates every upstream failure into a
// classified Error before it leaves the package.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/archlens/archlens/pkg/models"
)

// Config configures the generation client.
type Config struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	AnalysisModels []string `yaml:"analysis_models"` // primary first, fallbacks after
	SpeechModel    string   `yaml:"speech_model"`
	ImageModel     string   `yaml:"image_model"`
}

// Client calls the generation service over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

const analysisPrompt = `You are an expert system for analyzing and optimizing technology architectures. Perform a detailed comparative analysis of the attached documentation and produce an improved professional report in both HTML and Markdown, covering: executive summary, original architecture review, two to four proposed architectures with trade-offs, a decision matrix, final considerations, glossary and references.

User input:
- Context/domain: %s
- Known constraints: %s
- Priorities: %s

Placeholders (required, exactly once each, HTML output only):
- Insert the literal string '` + models.AudioPlaceholder + `' immediately after the executive summary section.
- Insert the literal string '` + models.DiagramPlaceholder + `' where an AI-generated visual diagram belongs.

Respond with a single JSON object matching the provided schema and nothing else.`

// request/response shapes for the generateContent wire format.

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig map[string]any    `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content generateContent `json:"content"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// analysisPayload is the JSON document the analysis model is asked to
// emit.
type analysisPayload struct {
	HTML          string `json:"html"`
	Markdown      string `json:"markdown"`
	AudioSummary  string `json:"audio_summary"`
	DiagramPrompt string `json:"diagram_prompt"`
}

// AnalyzeDocuments runs the comparative architecture analysis over the
// uploaded files. Models are tried in configured order; fallbacks are
// only attempted for retryable failures.
func (c *Client) AnalyzeDocuments(ctx context.Context, files []models.UploadedFile, userContext, constraints, priorities string) (*models.AnalysisResponse, error) {
	parts := make([]generatePart, 0, len(files)+1)
	for _, f := range files {
		parts = append(parts, generatePart{
			InlineData: &inlineData{MimeType: f.MimeType, Data: f.Data},
		})
	}
	parts = append(parts, generatePart{
		Text: fmt.Sprintf(analysisPrompt, orUnspecified(userContext), orUnspecified(constraints), orUnspecified(priorities)),
	})

	reqBody := generateRequest{
		Contents: []generateContent{{Parts: parts}},
		GenerationConfig: map[string]any{
			"responseMimeType": "application/json",
		},
	}

	var lastErr *Error
	for _, model := range c.cfg.AnalysisModels {
		resp, err := c.generate(ctx, model, reqBody)
		if err == nil {
			return parseAnalysis(resp)
		}
		lastErr = err
		if !err.Retryable() {
			return nil, err
		}
		log.Printf("genai: analysis model %s failed, trying next: %v", model, err)
	}
	if lastErr == nil {
		return nil, &Error{Kind: KindInvalidParams, Message: "no analysis model configured"}
	}
	return nil, lastErr
}

func parseAnalysis(resp *generateResponse) (*models.AnalysisResponse, error) {
	text := firstText(resp)
	if text == "" {
		return nil, &Error{Kind: KindUnknown, Message: "analysis returned no document"}
	}
	var payload analysisPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "analysis response was not valid JSON", cause: err}
	}
	return &models.AnalysisResponse{
		DocumentHTML:     payload.HTML,
		DocumentMarkdown: payload.Markdown,
		AudioSummary:     payload.AudioSummary,
		DiagramPrompt:    payload.DiagramPrompt,
	}, nil
}

// narrationInstructions maps a narration style to the spoken delivery
// requested from the speech model.
var narrationInstructions = map[string]string{
	"professional": "in a clear, professional and natural voice",
	"enthusiastic": "with enthusiasm, in a dynamic and energetic voice",
	"calm":         "in a calm, measured and gentle voice",
}

// SynthesizeSpeech converts text to narrated audio and returns the
// encoded audio payload. The caller is responsible for keeping text
// within the service's single-call size limit.
func (c *Client) SynthesizeSpeech(ctx context.Context, text, voice, style string) (string, error) {
	instruction, ok := narrationInstructions[style]
	if !ok {
		instruction = narrationInstructions["professional"]
	}

	reqBody := generateRequest{
		Contents: []generateContent{{Parts: []generatePart{{
			Text: fmt.Sprintf("Read the following summary %s: %q", instruction, text),
		}}}},
		GenerationConfig: map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]any{"voiceName": voice},
				},
			},
		},
	}

	resp, err := c.generate(ctx, c.cfg.SpeechModel, reqBody)
	if err != nil {
		return "", err
	}
	audio := firstInlineData(resp)
	if audio == "" {
		return "", &Error{Kind: KindUnknown, Message: "synthesis returned no audio payload"}
	}
	return audio, nil
}

// image generation wire format.

type imageRequest struct {
	Instances  []imageInstance `json:"instances"`
	Parameters imageParams     `json:"parameters"`
}

type imageInstance struct {
	Prompt string `json:"prompt"`
}

type imageParams struct {
	SampleCount    int    `json:"sampleCount"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type imageResponse struct {
	Predictions []prediction `json:"predictions"`
}

// GenerateImages produces diagram images for prompt in a single
// request. Count is a hint; the service may return fewer images. The
// visual style is folded into the prompt.
func (c *Client) GenerateImages(ctx context.Context, prompt, aspectRatio string, count int, style, negativePrompt string) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	if style != "" {
		prompt = fmt.Sprintf("%s Visual style: %s.", prompt, style)
	}

	reqBody := imageRequest{
		Instances: []imageInstance{{Prompt: prompt}},
		Parameters: imageParams{
			SampleCount:    count,
			AspectRatio:    aspectRatio,
			NegativePrompt: negativePrompt,
		},
	}

	var resp imageResponse
	if err := c.post(ctx, c.endpoint(c.cfg.ImageModel, "predict"), reqBody, &resp); err != nil {
		return nil, err
	}

	images := make([]string, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		if p.BytesBase64Encoded != "" {
			images = append(images, p.BytesBase64Encoded)
		}
	}
	if len(images) == 0 {
		return nil, &Error{Kind: KindUnknown, Message: "image generation returned no images"}
	}
	return images, nil
}

// generate issues one generateContent call against the given model.
func (c *Client) generate(ctx context.Context, model string, reqBody generateRequest) (*generateResponse, *Error) {
	var resp generateResponse
	if err := c.post(ctx, c.endpoint(model, "generateContent"), reqBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) endpoint(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", strings.TrimRight(c.cfg.BaseURL, "/"), model, method)
}

// post sends one JSON request and decodes the response, classifying
// every failure.
func (c *Client) post(ctx context.Context, url string, reqBody, respBody any) *Error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return &Error{Kind: KindInvalidParams, Message: "could not encode request", cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: KindInvalidParams, Message: "could not build request", cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		_ = json.Unmarshal(body, &ae)
		msg := ae.Error.Message
		if msg == "" {
			msg = ae.Error.Status
		}
		return classify(resp.StatusCode, msg, fmt.Errorf("upstream status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return classify(resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func firstText(resp *generateResponse) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

func firstInlineData(resp *generateResponse) string {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return p.InlineData.Data
			}
		}
	}
	return ""
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not specified"
	}
	return s
}
