package translate

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxstream/transcribe-core/logger"
	"github.com/voxstream/transcribe-core/sentence"
)

// DefaultTimeout is the default per-call LLM translation timeout (spec.md
// §4.6, §5: "LLM translation call: 15s").
const DefaultTimeout = 15 * time.Second

// Dispatcher issues concurrent, rate-limited translation calls. It never
// orders its results — ordering is orderedsender.Sender's job (spec.md
// §4.6: "The dispatcher does NOT order results").
type Dispatcher struct {
	bucket     *TokenBucket
	translator Translator
	timeout    time.Duration
	sourceLang string
	targetLang string

	ctxMu       sync.Mutex
	lastContext string

	// group tracks outstanding translation goroutines so Wait can block
	// until they all finish (spec.md §5's 60s background-drain bound).
	// runTranslation never returns an error itself — failures are folded
	// into the delivered Result — so group.Wait's error return is always
	// nil; it is used purely for its wait-group semantics, the same role
	// the teacher's pipeline chains give errgroup.Group.
	group errgroup.Group
}

// Config configures a Dispatcher.
type Config struct {
	SourceLang string
	TargetLang string
	RPMLimit   int
	Timeout    time.Duration // zero uses DefaultTimeout
}

// New returns a Dispatcher backed by translator, rate-limited per cfg.
func New(translator Translator, cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		bucket:     NewTokenBucket(DefaultCapacity, cfg.RPMLimit),
		translator: translator,
		timeout:    timeout,
		sourceLang: cfg.SourceLang,
		targetLang: cfg.TargetLang,
	}
}

// TranslateSentence runs one sentence through the dispatcher as an
// independent concurrent task: it acquires a token, invokes the LLM
// translation bounded by the configured timeout, and always invokes
// onComplete exactly once — even on timeout, error, or a panic inside
// onComplete itself, which is logged and swallowed (spec.md §4.6). The task
// is tracked so Wait can block until all outstanding translations finish.
func (d *Dispatcher) TranslateSentence(ctx context.Context, s sentence.Sentence, onComplete func(Result)) {
	d.group.Go(func() error {
		d.runTranslation(ctx, s, onComplete)
		return nil
	})
}

// TranslateBlob implements the simulated-streaming legacy path (spec.md
// §4.8): the entire finalized text is translated as one blob, without
// sentence splitting, still governed by the same TokenBucket. SegmentID and
// SentenceIndex are left zero-valued since the legacy wire event carries a
// transcript id instead (attached by the caller).
func (d *Dispatcher) TranslateBlob(ctx context.Context, text string, onComplete func(Result)) {
	d.TranslateSentence(ctx, sentence.Sentence{Text: text}, onComplete)
}

func (d *Dispatcher) runTranslation(ctx context.Context, s sentence.Sentence, onComplete func(Result)) {
	if err := d.bucket.Acquire(ctx); err != nil {
		return // context canceled while waiting for a token; nothing to deliver.
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	text, err := d.translator.Translate(callCtx, d.sourceLang, d.targetLang, d.snapshotContext(), s.Text)

	result := Result{SegmentID: s.SegmentID, SentenceIndex: s.SentenceIndex, IsFinal: true}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Text = TimeoutText
		result.Error = true
	case err != nil:
		result.Text = FailedText
		result.Error = true
	default:
		result.Text = text
		d.setContext(s.Text)
	}

	d.invoke(onComplete, result)
}

// invoke calls onComplete, recovering and logging any panic so a faulty
// callback never kills the translation goroutine or the Session.
func (d *Dispatcher) invoke(onComplete func(Result), result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("translation callback panicked", "panic", r, "segment_id", result.SegmentID, "sentence_index", result.SentenceIndex)
		}
	}()
	onComplete(result)
}

func (d *Dispatcher) snapshotContext() string {
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	return d.lastContext
}

func (d *Dispatcher) setContext(text string) {
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	d.lastContext = text
}

// Wait blocks until every dispatched translation has invoked its callback,
// or until ctx is done, whichever comes first (spec.md §5: "Background
// translation drain on stop: 60s").
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
