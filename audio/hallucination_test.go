package audio

import "testing"

func TestIsValidTextRejectsShortText(t *testing.T) {
	for _, text := range []string{"", "a", "ok", "hi!"} {
		if isValidText(text) {
			t.Errorf("isValidText(%q) = true, want false", text)
		}
	}
}

func TestIsValidTextRejectsPurePunctuation(t *testing.T) {
	if isValidText("...!!??") {
		t.Error("expected pure punctuation to be rejected")
	}
}

func TestIsValidTextRejectsKnownHallucinationsCaseInsensitive(t *testing.T) {
	for _, text := range []string{"Thank you.", "THANKS", "Okay", "bye.", "谢谢", "好的。"} {
		if isValidText(text) {
			t.Errorf("isValidText(%q) = true, want false", text)
		}
	}
}

func TestIsValidTextAcceptsRealSentence(t *testing.T) {
	if !isValidText("The quarterly report is due on Friday.") {
		t.Error("expected a real sentence to be accepted")
	}
}
