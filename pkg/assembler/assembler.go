// Package assembler turns a raw analysis response into the final
// composite result: it produces the narration audio and diagram images
// through the caches and generation calls, then splices their markup
// into the document at the placeholder tokens.
package assembler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/archlens/archlens/pkg/cache"
	"github.com/archlens/archlens/pkg/chunker"
	"github.com/archlens/archlens/pkg/codec"
	"github.com/archlens/archlens/pkg/models"
)

// Synthesizer converts text within the single-call size limit to an
// encoded audio payload.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, text, voice, style string) (string, error)
}

// ImageGenerator produces encoded diagram images in one request. Count
// is a hint; fewer images may be returned.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, prompt, aspectRatio string, count int, style, negativePrompt string) ([]string, error)
}

// Options carry the generation parameters for one assembly run.
type Options struct {
	Voice          string
	NarrationStyle string
	Diagram        models.DiagramOptions
}

// Assembler owns the artifact caches and the generation collaborators.
type Assembler struct {
	speech       Synthesizer
	images       ImageGenerator
	audioCache   *cache.Cache[string]
	diagramCache *cache.Cache[[]string]
	chunkLimit   int
}

// DefaultChunkLimit is the synthesis API's single-call size bound in
// runes.
const DefaultChunkLimit = 4000

// New creates an Assembler. A chunkLimit of zero or less uses
// DefaultChunkLimit.
func New(speech Synthesizer, images ImageGenerator, audioCache *cache.Cache[string], diagramCache *cache.Cache[[]string], chunkLimit int) *Assembler {
	if chunkLimit <= 0 {
		chunkLimit = DefaultChunkLimit
	}
	return &Assembler{
		speech:       speech,
		images:       images,
		audioCache:   audioCache,
		diagramCache: diagramCache,
		chunkLimit:   chunkLimit,
	}
}

// Assemble runs the audio and diagram paths for the analysis response
// and substitutes the placeholder tokens. Diagrams are generated
// immediately when a prompt is present. The returned result is never
// nil; when a generation call fails, the failing artifact's status is
// marked failed, its placeholder is emptied, and the classified error
// is returned alongside the partial result.
func (a *Assembler) Assemble(ctx context.Context, analysis *models.AnalysisResponse, opts Options) (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		DocumentHTML:     analysis.DocumentHTML,
		DocumentMarkdown: analysis.DocumentMarkdown,
		AudioStatus:      models.ArtifactNotRequested,
		DiagramStatus:    models.ArtifactNotRequested,
		DiagramPrompt:    analysis.DiagramPrompt,
	}

	var firstErr error
	var audioMarkup, diagramMarkup string

	if analysis.AudioSummary != "" {
		result.AudioStatus = models.ArtifactPending
		payload, err := a.audioPayload(ctx, analysis.AudioSummary, opts)
		if err != nil {
			result.AudioStatus = models.ArtifactFailed
			firstErr = fmt.Errorf("audio path: %w", err)
		} else {
			result.AudioStatus = models.ArtifactReady
			result.AudioData = payload
			audioMarkup = renderAudio(payload)
		}
	}

	if analysis.DiagramPrompt != "" && firstErr == nil {
		result.DiagramStatus = models.ArtifactPending
		images, err := a.diagramImages(ctx, analysis.DiagramPrompt, opts.Diagram)
		if err != nil {
			result.DiagramStatus = models.ArtifactFailed
			firstErr = fmt.Errorf("diagram path: %w", err)
		} else {
			result.DiagramStatus = models.ArtifactReady
			result.DiagramImages = images
			diagramMarkup = renderDiagram(images)
		}
	}

	result.DocumentHTML = substitute(result.DocumentHTML, audioMarkup, diagramMarkup)
	return result, firstErr
}

// audioPayload returns the encoded narration audio for summary, from
// cache when possible. Long summaries are chunked, synthesized
// concurrently, and reassembled in chunk order before the combined
// payload is cached under the full summary's key.
func (a *Assembler) audioPayload(ctx context.Context, summary string, opts Options) (string, error) {
	params := []string{opts.Voice, opts.NarrationStyle}

	if payload, ok := a.audioCache.Get(params, summary); ok {
		return payload, nil
	}

	if utf8.RuneCountInString(summary) <= a.chunkLimit {
		payload, err := a.speech.SynthesizeSpeech(ctx, summary, opts.Voice, opts.NarrationStyle)
		if err != nil {
			return "", fmt.Errorf("synthesize narration: %w", err)
		}
		a.audioCache.Set(params, summary, payload)
		return payload, nil
	}

	chunks := chunker.Split(summary, a.chunkLimit)
	encoded := make([]string, len(chunks))

	// Chunks are independent and keyed by position, so they are all
	// issued at once; completion order does not matter.
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			payload, err := a.speech.SynthesizeSpeech(gctx, chunk, opts.Voice, opts.NarrationStyle)
			if err != nil {
				return fmt.Errorf("chunk %d of %d (%q): %w", i+1, len(chunks), excerpt(chunk), err)
			}
			encoded[i] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	parts := make([][]byte, len(encoded))
	for i, e := range encoded {
		b, err := codec.Decode(e)
		if err != nil {
			return "", fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		parts[i] = b
	}

	combined := codec.Encode(codec.Concat(parts))
	a.audioCache.Set(params, summary, combined)
	return combined, nil
}

// GenerateDiagram produces (or re-serves) the diagram image set for a
// prompt outside a full assembly run, for on-demand regeneration.
func (a *Assembler) GenerateDiagram(ctx context.Context, prompt string, d models.DiagramOptions) ([]string, error) {
	return a.diagramImages(ctx, prompt, d)
}

// diagramImages returns the diagram image set for prompt, from cache
// when possible. Failures are never cached.
func (a *Assembler) diagramImages(ctx context.Context, prompt string, d models.DiagramOptions) ([]string, error) {
	params := []string{d.AspectRatio, strconv.Itoa(d.NumberOfImages), d.Style, d.NegativePrompt}

	if images, ok := a.diagramCache.Get(params, prompt); ok {
		return images, nil
	}

	images, err := a.images.GenerateImages(ctx, prompt, d.AspectRatio, d.NumberOfImages, d.Style, d.NegativePrompt)
	if err != nil {
		return nil, fmt.Errorf("generate diagram: %w", err)
	}
	a.diagramCache.Set(params, prompt, images)
	return images, nil
}

// substitute replaces each placeholder token at most once, leaving the
// rest of the document untouched.
func substitute(html, audioMarkup, diagramMarkup string) string {
	html = strings.Replace(html, models.AudioPlaceholder, audioMarkup, 1)
	html = strings.Replace(html, models.DiagramPlaceholder, diagramMarkup, 1)
	return html
}

func renderAudio(payload string) string {
	return `<div class="audio-summary"><h3>Listen to the executive summary</h3>` +
		`<audio controls><source src="data:audio/mpeg;base64,` + payload +
		`" type="audio/mpeg"></audio></div>`
}

func renderDiagram(images []string) string {
	var b strings.Builder
	b.WriteString(`<figure class="generated-diagram">`)
	for _, img := range images {
		b.WriteString(`<img src="data:image/jpeg;base64,`)
		b.WriteString(img)
		b.WriteString(`" alt="AI generated architecture diagram" />`)
	}
	b.WriteString(`<figcaption>AI generated architecture diagram.</figcaption></figure>`)
	return b.String()
}

// excerpt returns the start of a chunk for diagnostics.
func excerpt(s string) string {
	const max = 40
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
