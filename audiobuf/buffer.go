// Package audiobuf implements AudioBuffer (spec.md §4.1): an append-only,
// in-memory log of received audio frames with a distinguished header frame,
// guaranteeing every byte seen by a session is reachable for persistence.
package audiobuf

import (
	"bytes"
	"fmt"
	"sync"
)

// Buffer is an append-only log of audio Frames. The zero value is not
// usable; construct with New.
type Buffer struct {
	mu     sync.RWMutex
	frames [][]byte
	header []byte
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append records frame. The first frame appended to a Buffer becomes its
// header frame.
func (b *Buffer) Append(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.header == nil && len(frame) > 0 {
		b.header = append([]byte(nil), frame...)
	}
	b.frames = append(b.frames, append([]byte(nil), frame...))
}

// Count returns the number of frames appended so far.
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// Header returns the header frame, or nil if no frame has been appended yet.
func (b *Buffer) Header() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.header == nil {
		return nil
	}
	return append([]byte(nil), b.header...)
}

// SnapshotFrom returns the concatenation of all frames with index >= offset,
// prepending the header frame when offset > 0 and the first included chunk
// does not already begin with the header. Fails with InvariantViolation if
// offset > Count().
func (b *Buffer) SnapshotFrom(offset int) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if offset > len(b.frames) {
		return nil, fmt.Errorf("%w: snapshot offset %d exceeds frame count %d", ErrInvariantViolation, offset, len(b.frames))
	}

	var buf bytes.Buffer
	needsHeader := offset > 0 && b.header != nil
	for i := offset; i < len(b.frames); i++ {
		if needsHeader {
			if !bytes.HasPrefix(b.frames[i], b.header) {
				buf.Write(b.header)
			}
			needsHeader = false
		}
		buf.Write(b.frames[i])
	}
	return buf.Bytes(), nil
}

// FullPayload returns the header followed by every appended frame.
func (b *Buffer) FullPayload() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var buf bytes.Buffer
	for _, f := range b.frames {
		buf.Write(f)
	}
	return buf.Bytes()
}
