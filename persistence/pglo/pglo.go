// Package pglo is a PostgreSQL Large Object-backed persistence.AudioStore.
// Every stored audio payload gets its own large object, addressed by the
// integer OID Postgres assigns it; reads and streamed chunk reads use
// lo_lseek/lo_read under the hood via pgx's LargeObjects API, so a
// multi-hour recording is never materialized into memory all at once.
package pglo

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxstream/transcribe-core/persistence"
)

// Store is a persistence.AudioStore backed by Postgres large objects.
// Every call runs inside its own transaction — a large object is only
// readable/writable within the transaction that opened it, so Store never
// exposes the *pgx.LargeObject handle past a single method call.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pgxpool.Pool. The caller owns the pool's
// lifecycle (Close).
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ persistence.AudioStore = (*Store)(nil)

// SaveAudio creates a new large object containing data and returns its OID.
func (s *Store) SaveAudio(ctx context.Context, data []byte) (oid *uint32, blobID string, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("pglo: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	los := tx.LargeObjects()
	id, err := los.Create(ctx, 0)
	if err != nil {
		return nil, "", fmt.Errorf("pglo: create large object: %w", err)
	}

	obj, err := los.Open(ctx, id, pgx.LargeObjectModeWrite)
	if err != nil {
		return nil, "", fmt.Errorf("pglo: open for write: %w", err)
	}
	if _, err := obj.Write(data); err != nil {
		return nil, "", fmt.Errorf("pglo: write: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("pglo: commit: %w", err)
	}
	return &id, "", nil
}

// ReadAudio reads length bytes of the large object oid starting at offset.
// length < 0 reads to the end.
func (s *Store) ReadAudio(ctx context.Context, oid *uint32, blobID string, offset, length int64) ([]byte, error) {
	if oid == nil {
		return nil, persistence.ErrNoAudioIdentifier
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pglo: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	obj, err := tx.LargeObjects().Open(ctx, *oid, pgx.LargeObjectModeRead)
	if err != nil {
		return nil, fmt.Errorf("pglo: open for read: %w", err)
	}
	if offset > 0 {
		if _, err := obj.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("pglo: seek: %w", err)
		}
	}

	if length < 0 {
		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, fmt.Errorf("pglo: read: %w", err)
		}
		return data, nil
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(obj, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("pglo: read: %w", err)
	}
	return buf[:n], nil
}

// StreamAudioChunks streams the large object oid in chunkSize pieces.
func (s *Store) StreamAudioChunks(ctx context.Context, oid *uint32, blobID string, chunkSize int) (<-chan persistence.AudioChunk, error) {
	if oid == nil {
		return nil, persistence.ErrNoAudioIdentifier
	}
	if chunkSize <= 0 {
		chunkSize = 1 << 20 // 1 MiB
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pglo: begin: %w", err)
	}

	obj, err := tx.LargeObjects().Open(ctx, *oid, pgx.LargeObjectModeRead)
	if err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("pglo: open for read: %w", err)
	}

	out := make(chan persistence.AudioChunk)
	go func() {
		defer close(out)
		defer tx.Rollback(ctx)

		buf := make([]byte, chunkSize)
		for {
			n, readErr := obj.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case out <- persistence.AudioChunk{Data: chunk}:
				case <-ctx.Done():
					out <- persistence.AudioChunk{Err: ctx.Err()}
					return
				}
			}
			if readErr == io.EOF {
				return
			}
			if readErr != nil {
				out <- persistence.AudioChunk{Err: fmt.Errorf("pglo: read: %w", readErr)}
				return
			}
		}
	}()
	return out, nil
}

// GetAudioSize returns the large object's size via a seek-to-end.
func (s *Store) GetAudioSize(ctx context.Context, oid *uint32, blobID string) (int64, error) {
	if oid == nil {
		return 0, persistence.ErrNoAudioIdentifier
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("pglo: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	obj, err := tx.LargeObjects().Open(ctx, *oid, pgx.LargeObjectModeRead)
	if err != nil {
		return 0, fmt.Errorf("pglo: open for read: %w", err)
	}
	size, err := obj.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("pglo: seek: %w", err)
	}
	return size, nil
}

// DeleteAudio unlinks the large object oid.
func (s *Store) DeleteAudio(ctx context.Context, oid *uint32, blobID string) (bool, error) {
	if oid == nil {
		return false, persistence.ErrNoAudioIdentifier
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("pglo: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.LargeObjects().Unlink(ctx, *oid); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("pglo: unlink: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("pglo: commit: %w", err)
	}
	return true, nil
}
