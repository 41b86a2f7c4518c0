package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/archlens/archlens/pkg/models"
)

func testClient(upstream *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:        upstream.URL,
		APIKey:         "test-key",
		AnalysisModels: []string{"analysis-pro"},
		SpeechModel:    "speech-1",
		ImageModel:     "image-1",
	}, upstream.Client())
}

func analysisBody(t *testing.T) []byte {
	t.Helper()
	payload := analysisPayload{
		HTML:          "<h1>Report</h1>" + models.AudioPlaceholder + models.DiagramPlaceholder,
		Markdown:      "# Report",
		AudioSummary:  "Short summary.",
		DiagramPrompt: "A diagram.",
	}
	text, _ := json.Marshal(payload)
	resp := generateResponse{Candidates: []candidate{
		{Content: generateContent{Parts: []generatePart{{Text: string(text)}}}},
	}}
	b, _ := json.Marshal(resp)
	return b
}

func TestAnalyzeDocuments(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "analysis-pro:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Error("missing API key header")
		}
		w.Write(analysisBody(t))
	}))
	defer upstream.Close()

	c := testClient(upstream)
	files := []models.UploadedFile{{Name: "arch.pdf", MimeType: "application/pdf", Data: "aGk="}}

	got, err := c.AnalyzeDocuments(context.Background(), files, "fintech", "on-prem", "cost")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.DocumentHTML, models.AudioPlaceholder) {
		t.Error("document missing audio placeholder")
	}
	if got.AudioSummary != "Short summary." || got.DiagramPrompt != "A diagram." {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestAnalyzeFallsBackOnRetryable(t *testing.T) {
	var calls []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if strings.Contains(r.URL.Path, "primary") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(analysisBody(t))
	}))
	defer upstream.Close()

	c := testClient(upstream)
	c.cfg.AnalysisModels = []string{"primary", "fallback"}

	if _, err := c.AnalyzeDocuments(context.Background(), nil, "", "", ""); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", len(calls))
	}
}

func TestAnalyzeDoesNotFallBackOnContentPolicy(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"Blocked by safety settings"}}`))
	}))
	defer upstream.Close()

	c := testClient(upstream)
	c.cfg.AnalysisModels = []string{"primary", "fallback"}

	_, err := c.AnalyzeDocuments(context.Background(), nil, "", "", "")
	var ge *Error
	if !errors.As(err, &ge) || ge.Kind != KindContentPolicy {
		t.Fatalf("expected content policy error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("content policy rejection must not be retried, got %d calls", calls)
	}
}

func TestSynthesizeSpeech(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(req.Contents[0].Parts[0].Text, "narration text") {
			t.Error("request missing narration text")
		}
		resp := generateResponse{Candidates: []candidate{
			{Content: generateContent{Parts: []generatePart{{
				InlineData: &inlineData{MimeType: "audio/mpeg", Data: "YXVkaW8="},
			}}}},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer upstream.Close()

	c := testClient(upstream)
	got, err := c.SynthesizeSpeech(context.Background(), "narration text", "Puck", "professional")
	if err != nil {
		t.Fatal(err)
	}
	if got != "YXVkaW8=" {
		t.Errorf("unexpected payload %q", got)
	}
}

func TestSynthesizeSpeechEmptyPayload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{})
	}))
	defer upstream.Close()

	c := testClient(upstream)
	if _, err := c.SynthesizeSpeech(context.Background(), "text", "Puck", "calm"); err == nil {
		t.Fatal("expected error for missing audio payload")
	}
}

func TestGenerateImages(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "image-1:predict") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req imageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Parameters.SampleCount != 2 || req.Parameters.AspectRatio != "16:9" {
			t.Errorf("unexpected parameters: %+v", req.Parameters)
		}
		if !strings.Contains(req.Instances[0].Prompt, "Blueprint") {
			t.Error("style not folded into prompt")
		}
		json.NewEncoder(w).Encode(imageResponse{Predictions: []prediction{
			{BytesBase64Encoded: "aW1nMQ=="},
			{BytesBase64Encoded: "aW1nMg=="},
		}})
	}))
	defer upstream.Close()

	c := testClient(upstream)
	got, err := c.GenerateImages(context.Background(), "An architecture diagram.", "16:9", 2, "Blueprint", "photo")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "aW1nMQ==" {
		t.Errorf("unexpected images %v", got)
	}
}

func TestGenerateImagesRateLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted"}}`))
	}))
	defer upstream.Close()

	c := testClient(upstream)
	_, err := c.GenerateImages(context.Background(), "p", "1:1", 1, "", "")
	if KindOf(err) != KindRateLimit {
		t.Fatalf("expected rate limit kind, got %v", err)
	}
}
