// Package orderedsender delivers per-segment translation results to a sink
// strictly in ascending sentence_index order, even though the translations
// that feed it complete out of order (spec.md §4.7).
package orderedsender

import (
	"sort"
	"sync"

	"github.com/voxstream/transcribe-core/translate"
)

// Sink receives one translation result, already in order. Callers compose
// the client-delivery-then-persistence double-write described in spec.md
// §4.7 into a single Sink before constructing a Sender; Sender itself only
// guarantees ordering, not delivery semantics.
type Sink func(result translate.Result)

// Sender reorders translate.Results for a single segment_id, buffering
// out-of-order arrivals until the gap ahead of them closes.
type Sender struct {
	mu          sync.Mutex
	sink        Sink
	pending     map[int]translate.Result
	nextToSend  int
}

// New returns a Sender that delivers to sink in ascending sentence_index
// order, starting from 0.
func New(sink Sink) *Sender {
	return &Sender{
		sink:    sink,
		pending: make(map[int]translate.Result),
	}
}

// OnTranslationComplete buffers result and delivers every contiguous
// in-order result starting from the next expected index.
func (s *Sender) OnTranslationComplete(result translate.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[result.SentenceIndex] = result
	s.flushReadyLocked()
}

func (s *Sender) flushReadyLocked() {
	for {
		result, ok := s.pending[s.nextToSend]
		if !ok {
			return
		}
		delete(s.pending, s.nextToSend)
		s.sink(result)
		s.nextToSend++
	}
}

// FlushAll forces delivery of every buffered result in ascending index
// order, even across a gap, then clears the buffer. Used on segment close
// and on session stop to guarantee every received translation is emitted
// (spec.md §4.7).
func (s *Sender) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices := make([]int, 0, len(s.pending))
	for idx := range s.pending {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		s.sink(s.pending[idx])
	}
	s.pending = make(map[int]translate.Result)
}

// Reset clears buffered results and resets the expected index to 0, for
// reuse across a new segment.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[int]translate.Result)
	s.nextToSend = 0
}

// HasPending reports whether any results are buffered awaiting their turn.
func (s *Sender) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// PendingCount returns the number of buffered results awaiting delivery.
func (s *Sender) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
