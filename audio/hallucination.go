package audio

import "strings"

// hallucinationBlacklist lists exact (case-folded) transcripts Whisper-family
// batch models are known to emit on pure silence or background noise,
// with and without trailing terminal punctuation (spec.md §4.2).
var hallucinationBlacklist = map[string]bool{
	"thank you.": true, "thank you": true,
	"thanks.": true, "thanks": true,
	"so.": true, "so": true,
	"you.": true, "you": true,
	"yeah.": true, "yeah": true,
	"okay.": true, "okay": true,
	"ok.": true, "ok": true,
	"bye.": true, "bye": true,
	"谢谢。": true, "谢谢": true,
	"好的。": true, "好的": true,
	"嗯。": true, "嗯": true,
}

// isPurePunctuation reports whether every rune in text is drawn from the
// sentence-terminal/list-separator punctuation class, making it worthless
// as a transcript on its own.
func isPurePunctuation(text string) bool {
	const punctuation = ".?!,;:。？！，；："
	for _, r := range text {
		if !strings.ContainsRune(punctuation, r) {
			return false
		}
	}
	return true
}

// isValidText filters transcripts too short, pure punctuation, or an exact
// match (case-insensitive) for a known batch-STT hallucination, none of
// which are worth emitting or translating (spec.md §4.2).
func isValidText(text string) bool {
	if len(text) <= 3 {
		return false
	}
	if isPurePunctuation(text) {
		return false
	}
	return !hallucinationBlacklist[strings.ToLower(text)]
}
