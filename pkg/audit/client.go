package audit

import (
	"context"
	"time"

	"github.com/archlens/archlens/pkg/genai"
	"github.com/archlens/archlens/pkg/models"
)

// Client wraps a genai.Client and records a generation_log row for
// every upstream call. With a nil Logger it is pass-through.
type Client struct {
	inner  *genai.Client
	logger *Logger
	cfg    genai.Config
}

// NewClient wraps inner so that each generation call is audited.
func NewClient(inner *genai.Client, logger *Logger, cfg genai.Config) *Client {
	return &Client{inner: inner, logger: logger, cfg: cfg}
}

func (c *Client) AnalyzeDocuments(ctx context.Context, files []models.UploadedFile, userContext, constraints, priorities string) (*models.AnalysisResponse, error) {
	start := time.Now()
	resp, err := c.inner.AnalyzeDocuments(ctx, files, userContext, constraints, priorities)
	c.record(ctx, "analyze", c.analysisModel(), start, err)
	return resp, err
}

func (c *Client) SynthesizeSpeech(ctx context.Context, text, voice, style string) (string, error) {
	start := time.Now()
	audio, err := c.inner.SynthesizeSpeech(ctx, text, voice, style)
	c.record(ctx, "speech", c.cfg.SpeechModel, start, err)
	return audio, err
}

func (c *Client) GenerateImages(ctx context.Context, prompt, aspectRatio string, count int, style, negativePrompt string) ([]string, error) {
	start := time.Now()
	images, err := c.inner.GenerateImages(ctx, prompt, aspectRatio, count, style, negativePrompt)
	c.record(ctx, "image", c.cfg.ImageModel, start, err)
	return images, err
}

func (c *Client) analysisModel() string {
	if len(c.cfg.AnalysisModels) == 0 {
		return ""
	}
	return c.cfg.AnalysisModels[0]
}

func (c *Client) record(ctx context.Context, operation, model string, start time.Time, err error) {
	rec := models.GenerationRecord{
		RequestID: RequestID(ctx),
		Operation: operation,
		Model:     model,
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		rec.Status = "error"
		rec.ErrorKind = string(genai.KindOf(err))
	}
	c.logger.Log(ctx, rec)
}
