package assembler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/archlens/archlens/pkg/cache"
	"github.com/archlens/archlens/pkg/cache/sqlite"
	"github.com/archlens/archlens/pkg/codec"
	"github.com/archlens/archlens/pkg/models"
)

type stubSynth struct {
	mu      sync.Mutex
	calls   []string
	failOn  string // fail calls whose text contains this substring
	before  func(text string)
	after   func(text string)
}

func (s *stubSynth) SynthesizeSpeech(ctx context.Context, text, voice, style string) (string, error) {
	if s.before != nil {
		s.before(text)
	}
	if s.after != nil {
		defer s.after(text)
	}
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return "", errors.New("synthesis unavailable")
	}
	return codec.Encode([]byte("audio:" + text)), nil
}

func (s *stubSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubImages struct {
	calls  int
	err    error
	images []string
}

func (s *stubImages) GenerateImages(ctx context.Context, prompt, aspectRatio string, count int, style, negativePrompt string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.images, nil
}

func newTestAssembler(t *testing.T, synth Synthesizer, images ImageGenerator, chunkLimit int) *Assembler {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "cache.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return New(synth, images,
		cache.New[string](store, "audio_"),
		cache.New[[]string](store, "diagram_"),
		chunkLimit)
}

func testOpts() Options {
	return Options{
		Voice:          "Puck",
		NarrationStyle: "professional",
		Diagram: models.DiagramOptions{
			AspectRatio:    "16:9",
			NumberOfImages: 2,
			Style:          "Blueprint",
		},
	}
}

func docWithPlaceholders(middle string) *models.AnalysisResponse {
	return &models.AnalysisResponse{
		DocumentHTML:     "A " + models.AudioPlaceholder + " B" + middle + models.DiagramPlaceholder + " C",
		DocumentMarkdown: "# doc",
	}
}

func TestSubstituteExact(t *testing.T) {
	html := "A " + models.AudioPlaceholder + " B " + models.DiagramPlaceholder + " C"
	got := substitute(html, "X", "Y")
	if got != "A X B Y C" {
		t.Errorf("substitute = %q, want %q", got, "A X B Y C")
	}
}

func TestSubstituteEachAtMostOnce(t *testing.T) {
	html := models.AudioPlaceholder + " mid " + models.AudioPlaceholder
	got := substitute(html, "X", "")
	if got != "X mid "+models.AudioPlaceholder {
		t.Errorf("only the first occurrence may be replaced, got %q", got)
	}
}

func TestAssembleSkipsAbsentArtifacts(t *testing.T) {
	synth := &stubSynth{}
	images := &stubImages{}
	a := newTestAssembler(t, synth, images, 0)

	result, err := a.Assemble(context.Background(), docWithPlaceholders(" "), testOpts())
	if err != nil {
		t.Fatal(err)
	}

	if result.AudioStatus != models.ArtifactNotRequested {
		t.Errorf("audio status = %s", result.AudioStatus)
	}
	if result.DiagramStatus != models.ArtifactNotRequested {
		t.Errorf("diagram status = %s", result.DiagramStatus)
	}
	if result.DocumentHTML != "A  B  C" {
		t.Errorf("placeholders should be emptied, got %q", result.DocumentHTML)
	}
	if synth.callCount() != 0 || images.calls != 0 {
		t.Error("no generation calls expected")
	}
}

func TestShortNarrationSingleCallThenCacheHit(t *testing.T) {
	synth := &stubSynth{}
	a := newTestAssembler(t, synth, &stubImages{}, 4000)

	analysis := docWithPlaceholders(" ")
	analysis.AudioSummary = strings.Repeat("Summary sentence here. ", 20) // ~500 runes

	result, err := a.Assemble(context.Background(), analysis, testOpts())
	if err != nil {
		t.Fatal(err)
	}
	if synth.callCount() != 1 {
		t.Fatalf("expected 1 synthesis call, got %d", synth.callCount())
	}
	if result.AudioStatus != models.ArtifactReady || result.AudioData == "" {
		t.Error("expected ready audio artifact")
	}
	if !strings.Contains(result.DocumentHTML, "data:audio/mpeg;base64,") {
		t.Error("audio markup not substituted")
	}

	// Identical second run is served from cache.
	if _, err := a.Assemble(context.Background(), analysis, testOpts()); err != nil {
		t.Fatal(err)
	}
	if synth.callCount() != 1 {
		t.Errorf("expected cached payload, got %d synthesis calls", synth.callCount())
	}
}

func TestLongNarrationChunkedAndReassembled(t *testing.T) {
	synth := &stubSynth{}
	a := newTestAssembler(t, synth, &stubImages{}, 4000)

	sentence := strings.Repeat("a", 98) + ". "
	analysis := docWithPlaceholders(" ")
	analysis.AudioSummary = strings.Repeat(sentence, 90) // ~9000 runes

	result, err := a.Assemble(context.Background(), analysis, testOpts())
	if err != nil {
		t.Fatal(err)
	}
	if synth.callCount() != 3 {
		t.Fatalf("expected 3 synthesis calls, got %d", synth.callCount())
	}

	decoded, err := codec.Decode(result.AudioData)
	if err != nil {
		t.Fatal(err)
	}
	var want int
	synth.mu.Lock()
	for _, c := range synth.calls {
		want += len("audio:") + len(c)
	}
	synth.mu.Unlock()
	if len(decoded) != want {
		t.Errorf("combined audio length %d, want sum of chunk lengths %d", len(decoded), want)
	}

	// The combined payload is cached under the full summary's key.
	if _, err := a.Assemble(context.Background(), analysis, testOpts()); err != nil {
		t.Fatal(err)
	}
	if synth.callCount() != 3 {
		t.Errorf("expected no further synthesis calls, got %d", synth.callCount())
	}
}

func TestReassemblyIndependentOfCompletionOrder(t *testing.T) {
	// Three chunks with distinct leading words; the first chunk's
	// synthesis is held until the third completes.
	s1 := "Alpha alpha alpha."
	s2 := "Bravo bravo bravo."
	s3 := "Charlie charlie."
	summary := s1 + " " + s2 + " " + s3

	firstGate := make(chan struct{})
	synth := &stubSynth{
		before: func(text string) {
			if strings.HasPrefix(text, "Alpha") {
				<-firstGate
			}
		},
		after: func(text string) {
			if strings.HasPrefix(text, "Charlie") {
				close(firstGate)
			}
		},
	}
	a := newTestAssembler(t, synth, &stubImages{}, 20)

	analysis := docWithPlaceholders(" ")
	analysis.AudioSummary = summary

	result, err := a.Assemble(context.Background(), analysis, testOpts())
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := codec.Decode(result.AudioData)
	if err != nil {
		t.Fatal(err)
	}
	want := "audio:" + s1 + "audio:" + s2 + "audio:" + s3
	if string(decoded) != want {
		t.Errorf("reassembly order wrong:\n got %q\nwant %q", decoded, want)
	}
}

func TestChunkFailureFailsWholeAudioPath(t *testing.T) {
	synth := &stubSynth{failOn: "Bravo"}
	a := newTestAssembler(t, synth, &stubImages{}, 20)

	analysis := docWithPlaceholders(" ")
	analysis.AudioSummary = "Alpha alpha alpha. Bravo bravo bravo. Charlie charlie."

	result, err := a.Assemble(context.Background(), analysis, testOpts())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "chunk 2") {
		t.Errorf("error should identify the failing chunk: %v", err)
	}
	if !strings.Contains(err.Error(), "Bravo") {
		t.Errorf("error should include a chunk excerpt: %v", err)
	}
	if result.AudioStatus != models.ArtifactFailed {
		t.Errorf("audio status = %s, want failed", result.AudioStatus)
	}
	if result.AudioData != "" {
		t.Error("no partial audio may be returned")
	}
}

func TestDiagramCacheMissThenHit(t *testing.T) {
	images := &stubImages{images: []string{"aW1nMQ==", "aW1nMg=="}}
	a := newTestAssembler(t, &stubSynth{}, images, 0)

	analysis := docWithPlaceholders(" ")
	analysis.DiagramPrompt = "P"

	result, err := a.Assemble(context.Background(), analysis, testOpts())
	if err != nil {
		t.Fatal(err)
	}
	if images.calls != 1 {
		t.Fatalf("expected 1 generation call, got %d", images.calls)
	}
	if len(result.DiagramImages) != 2 {
		t.Fatalf("expected 2 images, got %d", len(result.DiagramImages))
	}
	if result.DiagramStatus != models.ArtifactReady {
		t.Errorf("diagram status = %s", result.DiagramStatus)
	}
	if strings.Count(result.DocumentHTML, "data:image/jpeg;base64,") != 2 {
		t.Error("diagram markup should embed both images")
	}

	second, err := a.Assemble(context.Background(), analysis, testOpts())
	if err != nil {
		t.Fatal(err)
	}
	if images.calls != 1 {
		t.Errorf("expected cached images, got %d generation calls", images.calls)
	}
	if len(second.DiagramImages) != 2 || second.DiagramImages[0] != "aW1nMQ==" {
		t.Errorf("cached images differ: %v", second.DiagramImages)
	}
}

func TestDiagramFailureNotCached(t *testing.T) {
	images := &stubImages{err: errors.New("quota exceeded")}
	a := newTestAssembler(t, &stubSynth{}, images, 0)

	analysis := docWithPlaceholders(" ")
	analysis.DiagramPrompt = "P"

	result, err := a.Assemble(context.Background(), analysis, testOpts())
	if err == nil {
		t.Fatal("expected error")
	}
	if result.DiagramStatus != models.ArtifactFailed {
		t.Errorf("diagram status = %s, want failed", result.DiagramStatus)
	}

	// A retry must reach the generator again: failures are not cached.
	images.err = nil
	images.images = []string{"ok"}
	if _, err := a.Assemble(context.Background(), analysis, testOpts()); err != nil {
		t.Fatal(err)
	}
	if images.calls != 2 {
		t.Errorf("expected 2 generation calls, got %d", images.calls)
	}
}

func TestDiagramKeyIncludesAllParameters(t *testing.T) {
	images := &stubImages{images: []string{"img"}}
	a := newTestAssembler(t, &stubSynth{}, images, 0)

	analysis := docWithPlaceholders(" ")
	analysis.DiagramPrompt = "P"

	opts := testOpts()
	if _, err := a.Assemble(context.Background(), analysis, opts); err != nil {
		t.Fatal(err)
	}

	// Changing only the negative prompt must miss the cache.
	opts.Diagram.NegativePrompt = "photorealistic"
	if _, err := a.Assemble(context.Background(), analysis, opts); err != nil {
		t.Fatal(err)
	}
	if images.calls != 2 {
		t.Errorf("expected distinct cache keys, got %d generation calls", images.calls)
	}
}
