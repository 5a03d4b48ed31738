// Package segment implements SegmentSupervisor (spec.md §4.5): it
// partitions the stream of final transcript fragments into UI cards using a
// soft-then-hard word-count threshold policy.
package segment

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// terminatorPattern mirrors sentence.terminatorPattern's class of
// sentence-terminal punctuation; duplicated here (rather than imported) so
// segment has no dependency on the sentence package, matching the spec's
// description of these as two independently-specified policies that happen
// to share a punctuation class.
var terminatorPattern = regexp.MustCompile(`[.!?。！？]\s*$`)

// EventKind is the kind of lifecycle event a Supervisor emits.
type EventKind string

// Event kinds (spec.md §3: "created, updated (multiple), closed").
const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventClosed  EventKind = "closed"
)

// Event is one lifecycle notification about a segment.
type Event struct {
	Kind      EventKind
	SegmentID string
	Text      string
	Start     float64
	End       float64
	WordCount int
}

// Supervisor tracks the currently-open segment and decides when to split it
// into a new one. Not safe for concurrent use; the Session serializes calls
// through its single transcript-handling goroutine per spec.md §5.
type Supervisor struct {
	softThreshold int
	hardThreshold int

	segmentID string
	buffer    strings.Builder
	start     float64
	end       float64
	started   bool
}

// New returns a Supervisor with a freshly generated segment id and the
// given soft/hard word-count thresholds.
func New(softThreshold, hardThreshold int) *Supervisor {
	return &Supervisor{
		softThreshold: softThreshold,
		hardThreshold: hardThreshold,
		segmentID:     newSegmentID(),
	}
}

// CurrentSegmentID returns the id of the segment currently open for
// writes. The Session must read this BEFORE calling AddTranscript for a
// given fragment, so that text which triggers a split is attributed to the
// card it finished (spec.md §4.8).
func (s *Supervisor) CurrentSegmentID() string {
	return s.segmentID
}

// AddTranscript appends text to the current segment, updates its
// timestamps, and returns the events generated: always one `updated`, plus
// `closed`+`created` when the soft-then-hard split policy fires.
func (s *Supervisor) AddTranscript(text string, start, end float64) []Event {
	if s.buffer.Len() > 0 {
		s.buffer.WriteByte(' ')
	}
	s.buffer.WriteString(text)

	if !s.started && strings.TrimSpace(text) != "" {
		s.start = start
		s.started = true
	}
	s.end = end

	events := []Event{{
		Kind:      EventUpdated,
		SegmentID: s.segmentID,
		Text:      s.buffer.String(),
		Start:     s.start,
		End:       s.end,
	}}

	if s.shouldSplit() {
		events = append(events, s.split())
		events = append(events, Event{
			Kind:      EventCreated,
			SegmentID: s.segmentID,
			Start:     0,
		})
	}

	return events
}

// shouldSplit applies the soft-then-hard threshold policy of spec.md §4.5.
func (s *Supervisor) shouldSplit() bool {
	wc := wordCount(s.buffer.String())
	if wc >= s.softThreshold && terminatorPattern.MatchString(s.buffer.String()) {
		return true
	}
	return wc >= s.hardThreshold
}

// split emits the `closed` event for the current segment and resets state
// for a freshly generated segment id.
func (s *Supervisor) split() Event {
	ev := Event{
		Kind:      EventClosed,
		SegmentID: s.segmentID,
		Text:      s.buffer.String(),
		Start:     s.start,
		End:       s.end,
		WordCount: wordCount(s.buffer.String()),
	}

	s.segmentID = newSegmentID()
	s.buffer.Reset()
	s.start = 0
	s.end = 0
	s.started = false

	return ev
}

// ForceClose emits a `closed` event for the current segment if it is
// non-empty. Called on stop.
func (s *Supervisor) ForceClose() *Event {
	if s.buffer.Len() == 0 {
		return nil
	}
	ev := s.split()
	return &ev
}

// wordCount is a language-agnostic whitespace split after trim (spec.md
// §4.5). Implementations MAY substitute a grapheme-cluster count for CJK;
// this is the documented default.
func wordCount(text string) int {
	return len(strings.Fields(text))
}

func newSegmentID() string {
	return uuid.NewString()
}
