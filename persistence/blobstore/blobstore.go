// Package blobstore is a driver-agnostic persistence.AudioStore backed by
// a single audio_blobs table (id UUID, data BLOB/bytea), usable against
// any database/sql driver. It is the fallback AudioStore for deployments
// that don't run Postgres — SQLite in particular — where large objects
// (persistence/pglo) aren't available.
package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/voxstream/transcribe-core/persistence"
)

// Store is a persistence.AudioStore backed by a SQL table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB. The caller owns its lifecycle.
// EnsureSchema must be called once before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ persistence.AudioStore = (*Store)(nil)

// EnsureSchema creates the audio_blobs table if it doesn't already exist.
// The DDL below is valid both against SQLite and Postgres.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audio_blobs (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
)`
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("blobstore: ensure schema: %w", err)
	}
	return nil
}

// SaveAudio inserts data under a newly generated blob ID.
func (s *Store) SaveAudio(ctx context.Context, data []byte) (oid *uint32, blobID string, err error) {
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO audio_blobs (id, data) VALUES (?, ?)`, id, data)
	if err != nil {
		return nil, "", fmt.Errorf("blobstore: insert: %w", err)
	}
	return nil, id, nil
}

// ReadAudio reads length bytes starting at offset from the blob blobID.
// length < 0 reads to the end. SQLite's SUBSTR is 1-indexed, so offset is
// translated to a 1-based start position.
func (s *Store) ReadAudio(ctx context.Context, oid *uint32, blobID string, offset, length int64) ([]byte, error) {
	if blobID == "" {
		return nil, persistence.ErrNoAudioIdentifier
	}
	if length < 0 {
		var data []byte
		err := s.db.QueryRowContext(ctx, `SELECT SUBSTR(data, ?, -1) FROM audio_blobs WHERE id = ?`, offset+1, blobID).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrAudioNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("blobstore: read: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT SUBSTR(data, ?, ?) FROM audio_blobs WHERE id = ?`, offset+1, length, blobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrAudioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: read: %w", err)
	}
	return data, nil
}

// StreamAudioChunks streams blobID in chunkSize pieces using ranged SUBSTR
// reads, so the full blob is never loaded into memory at once.
func (s *Store) StreamAudioChunks(ctx context.Context, oid *uint32, blobID string, chunkSize int) (<-chan persistence.AudioChunk, error) {
	if blobID == "" {
		return nil, persistence.ErrNoAudioIdentifier
	}
	if chunkSize <= 0 {
		chunkSize = 512 * 1024
	}

	total, err := s.GetAudioSize(ctx, oid, blobID)
	if err != nil {
		return nil, err
	}

	out := make(chan persistence.AudioChunk)
	go func() {
		defer close(out)
		for offset := int64(0); offset < total; offset += int64(chunkSize) {
			length := int64(chunkSize)
			if offset+length > total {
				length = total - offset
			}
			chunk, err := s.ReadAudio(ctx, oid, blobID, offset, length)
			if err != nil {
				out <- persistence.AudioChunk{Err: err}
				return
			}
			if len(chunk) == 0 {
				return
			}
			select {
			case out <- persistence.AudioChunk{Data: chunk}:
			case <-ctx.Done():
				out <- persistence.AudioChunk{Err: ctx.Err()}
				return
			}
		}
	}()
	return out, nil
}

// GetAudioSize returns the byte length of blobID's data column.
func (s *Store) GetAudioSize(ctx context.Context, oid *uint32, blobID string) (int64, error) {
	if blobID == "" {
		return 0, persistence.ErrNoAudioIdentifier
	}
	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT LENGTH(data) FROM audio_blobs WHERE id = ?`, blobID).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, persistence.ErrAudioNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("blobstore: size: %w", err)
	}
	return size, nil
}

// DeleteAudio removes the row for blobID.
func (s *Store) DeleteAudio(ctx context.Context, oid *uint32, blobID string) (bool, error) {
	if blobID == "" {
		return false, persistence.ErrNoAudioIdentifier
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM audio_blobs WHERE id = ?`, blobID)
	if err != nil {
		return false, fmt.Errorf("blobstore: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("blobstore: rows affected: %w", err)
	}
	return n > 0, nil
}
