// Package sentence implements SentenceBuilder (spec.md §4.4): it aggregates
// finalized transcript fragments into complete sentences for translation,
// locking each sentence to the segment it was born under.
package sentence

import (
	"regexp"
	"strings"
	"sync"
)

// Sentence is a complete, terminator-ended span of text assigned to the
// segment it began under.
type Sentence struct {
	Text          string
	SegmentID     string
	SentenceIndex int
}

// terminatorPattern matches the sentence-terminal punctuation class shared
// with SegmentSupervisor (spec.md §4.4, §4.5): ". ! ? 。 ！ ？", optionally
// followed by trailing whitespace. The terminator is captured so splitting
// preserves it on the sentence it ends.
var terminatorPattern = regexp.MustCompile(`([.!?。！？]+)\s*`)

// Builder accumulates finalized transcript fragments for one segment at a
// time and emits complete Sentences. Not safe for concurrent calls from
// more than one goroutine without external synchronization beyond its own
// mutex — the mutex here only protects internal state from racing
// Session/TrueStreamingProcessor goroutines, it does not impose ordering
// between calls.
type Builder struct {
	mu sync.Mutex

	pending       strings.Builder
	lockedSegment string
	sentenceIndex int
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// AddFinal accumulates text (space-joined, trimmed) under segmentID,
// extracts every complete sentence found in the accumulated buffer, and
// returns them with fresh, segment-local, monotonically increasing
// SentenceIndex values. Any trailing non-terminated tail remains buffered
// for the next call.
//
// The segment a sentence is attributed to is "locked" onto the first
// fragment of that not-yet-started sentence: later fragments extending the
// same sentence keep the locked segment id even if the caller passes a
// newer segmentID (e.g. because SegmentSupervisor has since split).
func (b *Builder) AddFinal(text, segmentID string) []Sentence {
	b.mu.Lock()
	defer b.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if b.pending.Len() == 0 {
		// No sentence currently in progress: this fragment starts one, so
		// it locks the segment for every sentence extracted from it until
		// the buffer empties again.
		b.lockedSegment = segmentID
	}

	if b.pending.Len() > 0 {
		b.pending.WriteByte(' ')
	}
	b.pending.WriteString(text)

	return b.extractComplete()
}

// extractComplete splits the pending buffer on the terminator class,
// preserving the terminator on the sentence it ends, and returns every
// complete sentence found. The caller must hold b.mu.
func (b *Builder) extractComplete() []Sentence {
	buffered := b.pending.String()
	locs := terminatorPattern.FindAllStringIndex(buffered, -1)
	if len(locs) == 0 {
		return nil
	}

	var out []Sentence
	cursor := 0
	for _, loc := range locs {
		segText := strings.TrimSpace(buffered[cursor:loc[1]])
		if segText == "" {
			cursor = loc[1]
			continue
		}
		out = append(out, Sentence{
			Text:          segText,
			SegmentID:     b.lockedSegment,
			SentenceIndex: b.sentenceIndex,
		})
		b.sentenceIndex++
		cursor = loc[1]
	}

	b.pending.Reset()
	if cursor < len(buffered) {
		b.pending.WriteString(strings.TrimSpace(buffered[cursor:]))
	}
	return out
}

// ResetForNewSegment force-flushes any pending buffered tail as a Sentence
// belonging to the old locked segment id, then resets SentenceIndex to 0
// and locks onto newSegmentID for the next AddFinal call.
func (b *Builder) ResetForNewSegment(newSegmentID string) []Sentence {
	b.mu.Lock()
	defer b.mu.Unlock()

	flushed := b.flushLocked()

	b.lockedSegment = newSegmentID
	b.sentenceIndex = 0
	return flushed
}

// Flush returns the pending tail, if any, as a final sentence in the
// current segment. Called on stop.
func (b *Builder) Flush() []Sentence {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// flushLocked returns the buffered tail as a single Sentence and clears it.
// The caller must hold b.mu.
func (b *Builder) flushLocked() []Sentence {
	tail := strings.TrimSpace(b.pending.String())
	b.pending.Reset()
	if tail == "" {
		return nil
	}
	s := Sentence{
		Text:          tail,
		SegmentID:     b.lockedSegment,
		SentenceIndex: b.sentenceIndex,
	}
	b.sentenceIndex++
	return []Sentence{s}
}
