package translate

// Result is the outcome of one sentence translation (spec.md §3).
type Result struct {
	Text          string
	SegmentID     string
	SentenceIndex int
	IsFinal       bool
	Error         bool
}

// Messages shown to the client when a translation call fails (spec.md
// §4.6). These are user-facing placeholders, not internal error strings.
const (
	TimeoutText = "[translation timeout]"
	FailedText  = "[translation failed]"
)
