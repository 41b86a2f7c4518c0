// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/archlens/archlens/pkg/assembler"
	"github.com/archlens/archlens/pkg/audit"
	"github.com/archlens/archlens/pkg/cache"
	"github.com/archlens/archlens/pkg/config"
	"github.com/archlens/archlens/pkg/genai"
	"github.com/archlens/archlens/pkg/history"
	"github.com/archlens/archlens/pkg/models"
)

// Analyzer runs the comparative document analysis.
type Analyzer interface {
	AnalyzeDocuments(ctx context.Context, files []models.UploadedFile, userContext, constraints, priorities string) (*models.AnalysisResponse, error)
}

// Server is the ArchLens HTTP API.
type Server struct {
	cfg          *config.Config
	analyzer     Analyzer
	asm          *assembler.Assembler
	history      *history.Store
	audioCache   *cache.Cache[string]
	diagramCache *cache.Cache[[]string]
	mux          *http.ServeMux
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, analyzer Analyzer, asm *assembler.Assembler, hist *history.Store, audioCache *cache.Cache[string], diagramCache *cache.Cache[[]string]) *Server {
	s := &Server{
		cfg:          cfg,
		analyzer:     analyzer,
		asm:          asm,
		history:      hist,
		audioCache:   audioCache,
		diagramCache: diagramCache,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/v1/diagram", s.handleDiagram)
	s.mux.HandleFunc("/v1/history", s.handleHistory)
	s.mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the API server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("archlens listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// analyzeResponse is the envelope returned by POST /v1/analyze. When
// an optional artifact failed, the document is still delivered and
// ArtifactError describes what went wrong.
type analyzeResponse struct {
	Result        *models.AnalysisResult `json:"result"`
	HistoryID     int64                  `json:"history_id,omitempty"`
	ArtifactError string                 `json:"artifact_error,omitempty"`
	ArtifactKind  string                 `json:"artifact_kind,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Files) == 0 {
		writeJSONError(w, http.StatusBadRequest, "at least one documentation file is required")
		return
	}
	if strings.TrimSpace(req.Context) == "" ||
		strings.TrimSpace(req.Constraints) == "" ||
		strings.TrimSpace(req.Priorities) == "" {
		writeJSONError(w, http.StatusBadRequest, "context, constraints and priorities are required")
		return
	}

	opts := s.assemblyOptions(req)
	ctx := audit.WithRequestID(r.Context(), uuid.NewString())

	analysis, err := s.analyzer.AnalyzeDocuments(ctx, req.Files, req.Context, req.Constraints, req.Priorities)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	result, asmErr := s.asm.Assemble(ctx, analysis, opts)

	resp := analyzeResponse{Result: result}
	if asmErr != nil {
		// The document itself succeeded; only an optional artifact
		// failed, so deliver the degraded result.
		log.Printf("artifact generation failed: %v", asmErr)
		resp.ArtifactError = asmErr.Error()
		resp.ArtifactKind = string(genai.KindOf(asmErr))
	}
	fileNames := make([]string, len(req.Files))
	for i, f := range req.Files {
		fileNames[i] = f.Name
	}
	if entry, err := s.history.Add(ctx, *result, fileNames, analysis.AudioSummary); err != nil {
		// History is bookkeeping, not part of the analysis contract.
		log.Printf("record history entry: %v", err)
	} else {
		resp.HistoryID = entry.ID
	}

	writeJSON(w, http.StatusOK, resp)
}

// diagramRequest asks for on-demand (re)generation of a diagram.
type diagramRequest struct {
	Prompt  string                `json:"prompt"`
	Options models.DiagramOptions `json:"options"`
}

func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req diagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "a diagram prompt is required")
		return
	}
	if req.Options.AspectRatio == "" {
		req.Options.AspectRatio = "16:9"
	}
	if req.Options.NumberOfImages <= 0 {
		req.Options.NumberOfImages = 1
	}

	ctx := audit.WithRequestID(r.Context(), uuid.NewString())
	images, err := s.asm.GenerateDiagram(ctx, req.Prompt, req.Options)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.history.List(r.Context())
		if err != nil {
			log.Printf("list history: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "could not read history")
			return
		}
		if entries == nil {
			entries = []models.HistoryEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodDelete:
		if err := s.history.Clear(r.Context()); err != nil {
			log.Printf("clear history: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "could not clear history")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.CacheStats{
		"audio":   s.audioCache.Stats(),
		"diagram": s.diagramCache.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// assemblyOptions fills request options with configured defaults.
func (s *Server) assemblyOptions(req models.AnalysisRequest) assembler.Options {
	opts := assembler.Options{
		Voice:          req.Voice,
		NarrationStyle: req.NarrationStyle,
		Diagram:        req.Diagram,
	}
	if opts.Voice == "" {
		opts.Voice = s.cfg.TTS.DefaultVoice
	}
	if opts.NarrationStyle == "" {
		opts.NarrationStyle = s.cfg.TTS.DefaultStyle
	}
	if opts.Diagram.AspectRatio == "" {
		opts.Diagram.AspectRatio = "16:9"
	}
	if opts.Diagram.NumberOfImages <= 0 {
		opts.Diagram.NumberOfImages = 1
	}
	return opts
}

// writeGenerationError maps a classified generation failure to an HTTP
// status and a user-facing message.
func writeGenerationError(w http.ResponseWriter, err error) {
	var status int
	switch genai.KindOf(err) {
	case genai.KindContentPolicy:
		status = http.StatusUnprocessableEntity
	case genai.KindInvalidParams:
		status = http.StatusBadRequest
	case genai.KindRateLimit:
		status = http.StatusTooManyRequests
	default:
		status = http.StatusBadGateway
	}
	log.Printf("generation failed: %v", err)

	msg := err.Error()
	var ge *genai.Error
	if errors.As(err, &ge) {
		msg = ge.Message
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
		"kind":  string(genai.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
