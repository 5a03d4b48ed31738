package persistence_test

import (
	"context"
	"testing"

	"github.com/voxstream/transcribe-core/persistence"
	"github.com/voxstream/transcribe-core/persistence/memory"
)

func newTestAdapter() *persistence.Adapter {
	return persistence.NewAdapter(memory.NewAudioStore(), memory.NewRecordingStore())
}

func TestAdapterSaveAndReadAudioRoundTrips(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()

	oid, blobID, err := a.SaveAudio(ctx, []byte("hello world"))
	if err != nil {
		t.Fatalf("SaveAudio: %v", err)
	}
	if oid != nil {
		t.Fatalf("expected memory backend to allocate no oid, got %v", *oid)
	}
	if blobID == "" {
		t.Fatal("expected a non-empty blob id")
	}

	got, err := a.ReadAudio(ctx, oid, blobID, 0, -1)
	if err != nil {
		t.Fatalf("ReadAudio: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("ReadAudio = %q, want %q", got, "hello world")
	}
}

func TestAdapterSaveAudioRejectsEmpty(t *testing.T) {
	a := newTestAdapter()
	if _, _, err := a.SaveAudio(context.Background(), nil); err != persistence.ErrEmptyAudio {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestAdapterReadAudioRequiresIdentifier(t *testing.T) {
	a := newTestAdapter()
	if _, err := a.ReadAudio(context.Background(), nil, "", 0, -1); err != persistence.ErrNoAudioIdentifier {
		t.Errorf("err = %v, want ErrNoAudioIdentifier", err)
	}
}

func TestAdapterAppendTranscriptAccumulates(t *testing.T) {
	ctx := context.Background()
	rows := memory.NewRecordingStore()
	a := persistence.NewAdapter(memory.NewAudioStore(), rows)

	if err := a.AppendTranscript(ctx, "rec-1", persistence.TranscriptSegment{Text: "hello", Start: 0, End: 1, IsFinal: true}); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}
	if err := a.AppendTranscript(ctx, "rec-1", persistence.TranscriptSegment{Text: "world", Start: 1, End: 2, IsFinal: true}); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}

	tr, err := rows.GetOrCreateTranscript(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetOrCreateTranscript: %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 accumulated segments, got %d", len(tr.Segments))
	}
	if tr.FullText != "hello world" {
		t.Errorf("FullText = %q, want %q", tr.FullText, "hello world")
	}
}

func TestAdapterUpdateTranslationAdoptsPhantomSegment(t *testing.T) {
	ctx := context.Background()
	rows := memory.NewRecordingStore()
	a := persistence.NewAdapter(memory.NewAudioStore(), rows)

	// Seed a phantom segment (no segment_id yet) by calling
	// GetOrCreateTranslation indirectly through an update with an empty
	// SegmentID, simulating a placeholder the UI created.
	if err := a.UpdateTranslation(ctx, "rec-1", "zh", persistence.TranslationUpdate{Text: "你好", IsFinal: false}); err != nil {
		t.Fatalf("seed UpdateTranslation: %v", err)
	}

	// A later update carrying a segment_id should adopt the phantom
	// segment (appending its text, not replacing it) rather than
	// appending a new segment.
	if err := a.UpdateTranslation(ctx, "rec-1", "zh", persistence.TranslationUpdate{SegmentID: "seg-1", Text: "你好世界", IsFinal: true}); err != nil {
		t.Fatalf("adopt UpdateTranslation: %v", err)
	}

	tr, err := rows.GetOrCreateTranslation(ctx, "rec-1", "zh")
	if err != nil {
		t.Fatalf("GetOrCreateTranslation: %v", err)
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("expected phantom segment to be adopted in place, got %d segments", len(tr.Segments))
	}
	if tr.Segments[0].SegmentID != "seg-1" || tr.Segments[0].Text != "你好 你好世界" || !tr.Segments[0].IsFinal {
		t.Errorf("unexpected adopted segment: %+v", tr.Segments[0])
	}
}

func TestAdapterUpdateTranslationAppendsToKnownSegment(t *testing.T) {
	ctx := context.Background()
	rows := memory.NewRecordingStore()
	a := persistence.NewAdapter(memory.NewAudioStore(), rows)

	if err := a.UpdateTranslation(ctx, "rec-1", "zh", persistence.TranslationUpdate{SegmentID: "seg-1", Text: "first sentence.", IsFinal: false}); err != nil {
		t.Fatalf("UpdateTranslation: %v", err)
	}
	if err := a.UpdateTranslation(ctx, "rec-1", "zh", persistence.TranslationUpdate{SegmentID: "seg-1", Text: "second sentence.", IsFinal: true}); err != nil {
		t.Fatalf("UpdateTranslation: %v", err)
	}

	tr, err := rows.GetOrCreateTranslation(ctx, "rec-1", "zh")
	if err != nil {
		t.Fatalf("GetOrCreateTranslation: %v", err)
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("expected segment updated in place, got %d segments", len(tr.Segments))
	}
	if tr.Segments[0].Text != "first sentence. second sentence." || !tr.Segments[0].IsFinal {
		t.Errorf("unexpected segment after append: %+v", tr.Segments[0])
	}
}

func TestAdapterUpdateTranslationAppendsWhenNoPhantomAvailable(t *testing.T) {
	ctx := context.Background()
	rows := memory.NewRecordingStore()
	a := persistence.NewAdapter(memory.NewAudioStore(), rows)

	if err := a.UpdateTranslation(ctx, "rec-1", "zh", persistence.TranslationUpdate{SegmentID: "seg-1", Text: "first", IsFinal: true}); err != nil {
		t.Fatalf("UpdateTranslation: %v", err)
	}
	if err := a.UpdateTranslation(ctx, "rec-1", "zh", persistence.TranslationUpdate{SegmentID: "seg-2", Text: "second", IsFinal: true}); err != nil {
		t.Fatalf("UpdateTranslation: %v", err)
	}

	tr, err := rows.GetOrCreateTranslation(ctx, "rec-1", "zh")
	if err != nil {
		t.Fatalf("GetOrCreateTranslation: %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected two distinct segments, got %d", len(tr.Segments))
	}
	if tr.FullText != "first second" {
		t.Errorf("FullText = %q, want %q", tr.FullText, "first second")
	}
}
