package sanitize

import (
	"strings"
	"testing"
)

func TestSanitizeDropsDenylistedSentences(t *testing.T) {
	got := Sanitize("This is nice. This is rude content. Great day.")
	if want := "This is nice. Great day."; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeIsCaseInsensitive(t *testing.T) {
	got := Sanitize("A calm street. NEGATIVE vibes here. Two cars parked")
	if want := "A calm street. Two cars parked"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeStripsControlToken(t *testing.T) {
	got := Sanitize("  A dog on the grass.<|im_end|>\n")
	if want := "A dog on the grass."; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSanitizeCleanTextIsTrimmedOnly(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"  A stop sign next to a road. The sky is clear.  ",
		"single fragment",
		"trailing separator. ",
	}
	for _, in := range inputs {
		if got, want := Sanitize(in), strings.TrimSpace(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"This is nice. This is rude content. Great day.",
		"ru<|im_end|>de. fine",
		"<|im_<|im_end|>end|>hello",
		"Critical. Aggressive. Spamming.",
		" . . x. unhelpful. ",
		"All good<|im_end|>. Nothing promoting here. ok",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSanitizeEverythingFiltered(t *testing.T) {
	if got := Sanitize("rude. critical. negative"); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestSanitizeNestedToken(t *testing.T) {
	if got := Sanitize("<|im_<|im_end|>end|>hello"); got != "hello" {
		t.Fatalf("got %q", got)
	}
}
