package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// stripSpace removes all whitespace so coverage can be compared
// independently of per-chunk trimming.
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSplitShortInput(t *testing.T) {
	got := Split("A short summary.", 4000)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != "A short summary." {
		t.Errorf("unexpected chunk: %q", got[0])
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if got := Split("", 100); got != nil {
		t.Errorf("expected no chunks for empty input, got %v", got)
	}
	if got := Split("   \n\t ", 100); got != nil {
		t.Errorf("expected no chunks for blank input, got %v", got)
	}
}

func TestSplitExactlyAtLimit(t *testing.T) {
	text := strings.Repeat("a", 50)
	got := Split(text, 50)
	if len(got) != 1 || got[0] != text {
		t.Errorf("input at limit should return one chunk, got %v", got)
	}
}

func TestSplitSentenceBoundaries(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	got := Split(text, 30)

	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, c := range got {
		if utf8.RuneCountInString(c) > 30 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, utf8.RuneCountInString(c))
		}
	}
	if got[0] != "First sentence here." {
		t.Errorf("expected split at sentence boundary, got %q", got[0])
	}
	if stripSpace(strings.Join(got, "")) != stripSpace(text) {
		t.Error("chunks do not reproduce source content")
	}
}

func TestSplitNewlineBoundary(t *testing.T) {
	text := "first line without punctuation\nsecond line without punctuation"
	got := Split(text, 35)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(got), got)
	}
	if got[0] != "first line without punctuation" {
		t.Errorf("unexpected first chunk: %q", got[0])
	}
}

func TestSplitOversizedSentence(t *testing.T) {
	// One sentence with no boundary at all, three times the limit.
	text := strings.Repeat("x", 250) + "."
	got := Split(text, 100)

	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if utf8.RuneCountInString(c) > 100 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, utf8.RuneCountInString(c))
		}
	}
	if stripSpace(strings.Join(got, "")) != stripSpace(text) {
		t.Error("force-split dropped or duplicated content")
	}
}

func TestSplitOversizedSentenceFlushesBuffer(t *testing.T) {
	text := "Short lead-in. " + strings.Repeat("y", 120) + ". Short tail."
	got := Split(text, 100)

	if got[0] != "Short lead-in." {
		t.Errorf("pending buffer should flush before force-split, got %q", got[0])
	}
	if got[len(got)-1] != "Short tail." {
		t.Errorf("unexpected final chunk: %q", got[len(got)-1])
	}
}

func TestSplitBoundAndCoverage(t *testing.T) {
	sentence := strings.Repeat("word ", 19) + "done."
	text := strings.Repeat(sentence+" ", 90)

	for _, limit := range []int{50, 200, 1000, 4000} {
		got := Split(text, limit)
		if len(got) == 0 {
			t.Fatalf("limit %d: no chunks", limit)
		}
		for i, c := range got {
			if utf8.RuneCountInString(c) > limit {
				t.Errorf("limit %d: chunk %d has %d runes", limit, i, utf8.RuneCountInString(c))
			}
		}
		if stripSpace(strings.Join(got, "")) != stripSpace(text) {
			t.Errorf("limit %d: content not preserved", limit)
		}
	}
}

func TestSplitLongNarration(t *testing.T) {
	// ~9000 runes of 100-rune sentences against a 4000 limit packs into 3 chunks.
	sentence := strings.Repeat("a", 98) + ". "
	text := strings.Repeat(sentence, 90)

	got := Split(text, 4000)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
}

func TestSplitOrderPreserved(t *testing.T) {
	text := "Alpha one. Bravo two. Charlie three. Delta four. Echo five."
	got := Split(text, 25)

	joined := strings.Join(got, " ")
	for _, word := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"} {
		if !strings.Contains(joined, word) {
			t.Fatalf("missing %q in chunks", word)
		}
	}
	if strings.Index(joined, "Alpha") > strings.Index(joined, "Echo") {
		t.Error("chunk order does not match source order")
	}
}
