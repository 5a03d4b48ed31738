package sentence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddFinalSplitsMultipleSentencesInOneFragment(t *testing.T) {
	b := New()
	got := b.AddFinal("First. Second. Third.", "seg-a")

	assert.Equal(t, []Sentence{
		{Text: "First.", SegmentID: "seg-a", SentenceIndex: 0},
		{Text: "Second.", SegmentID: "seg-a", SentenceIndex: 1},
		{Text: "Third.", SegmentID: "seg-a", SentenceIndex: 2},
	}, got)
}

func TestAddFinalBuffersUntilTerminator(t *testing.T) {
	b := New()
	assert.Empty(t, b.AddFinal("Hello", "seg-a"))
	got := b.AddFinal("world.", "seg-a")
	assert.Equal(t, []Sentence{{Text: "Hello world.", SegmentID: "seg-a", SentenceIndex: 0}}, got)
}

func TestAddFinalLocksSegmentOnFirstFragment(t *testing.T) {
	b := New()
	// First fragment of a not-yet-started sentence locks the segment.
	assert.Empty(t, b.AddFinal("Hello", "seg-a"))
	// SegmentSupervisor has since moved to seg-b, but this sentence stays
	// locked to seg-a since it began there.
	got := b.AddFinal("world.", "seg-b")
	assert.Equal(t, "seg-a", got[0].SegmentID)
}

func TestResetForNewSegmentFlushesPendingTailToOldSegment(t *testing.T) {
	b := New()
	b.AddFinal("trailing words with no terminator", "seg-a")

	flushed := b.ResetForNewSegment("seg-b")
	assert.Equal(t, []Sentence{{Text: "trailing words with no terminator", SegmentID: "seg-a", SentenceIndex: 0}}, flushed)

	// New segment starts sentence indices back at 0 and locks to seg-b.
	got := b.AddFinal("fresh.", "seg-b")
	assert.Equal(t, []Sentence{{Text: "fresh.", SegmentID: "seg-b", SentenceIndex: 0}}, got)
}

func TestResetForNewSegmentWithNoPendingTailReturnsNil(t *testing.T) {
	b := New()
	assert.Empty(t, b.ResetForNewSegment("seg-b"))
}

func TestFlushReturnsPendingTailOnStop(t *testing.T) {
	b := New()
	b.AddFinal("one two three", "seg-a")
	assert.Equal(t, []Sentence{{Text: "one two three", SegmentID: "seg-a", SentenceIndex: 0}}, b.Flush())
	// Flush is not destructive beyond draining the pending tail.
	assert.Empty(t, b.Flush())
}

func TestAddFinalHandlesCJKTerminators(t *testing.T) {
	b := New()
	got := b.AddFinal("你好。世界！", "seg-a")
	assert.Equal(t, []Sentence{
		{Text: "你好。", SegmentID: "seg-a", SentenceIndex: 0},
		{Text: "世界！", SegmentID: "seg-a", SentenceIndex: 1},
	}, got)
}

func TestAddFinalIgnoresEmptyText(t *testing.T) {
	b := New()
	assert.Empty(t, b.AddFinal("   ", "seg-a"))
	assert.Empty(t, b.Flush())
}
