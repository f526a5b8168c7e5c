// Copyright 2025 Certen Protocol
//
// Regex Precompile Tests

package precompiles

import (
	"testing"
)

func TestRegexMatch(t *testing.T) {
	output, err := regexMatch(packPair(t, "Hello, World!", `^Hello, World!$`))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	values, _ := boolType.Unpack(output)
	if !values[0].(bool) {
		t.Error("expected a match")
	}
}

func TestRegexNoMatch(t *testing.T) {
	output, err := regexMatch(packPair(t, "Hello, World!", `^Goodbye, World!$`))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	values, _ := boolType.Unpack(output)
	if values[0].(bool) {
		t.Error("expected no match")
	}
}

func TestRegexUnanchoredPatternIsRejected(t *testing.T) {
	want := `Regex must be surrounded by "^" and "$" pair to match the whole string`
	for _, pattern := range []string{"Hello, World!", "^only-start", "only-end$"} {
		_, err := regexMatch(packPair(t, "Hello, World!", pattern))
		if err == nil {
			t.Fatalf("pattern %q: expected error", pattern)
		}
		if err.Error() != want {
			t.Errorf("pattern %q: error %q, want %q", pattern, err, want)
		}
	}
}

func TestRegexCapture(t *testing.T) {
	output, err := regexCapture(packPair(t, "balance: 42 tokens", `^balance: (\d+) (tokens|coins)$`))
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	values, err := stringListType.Unpack(output)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	captures := values[0].([]string)
	want := []string{"balance: 42 tokens", "42", "tokens"}
	if len(captures) != len(want) {
		t.Fatalf("captures: got %v, want %v", captures, want)
	}
	for i := range want {
		if captures[i] != want[i] {
			t.Errorf("capture %d: got %q, want %q", i, captures[i], want[i])
		}
	}
}

func TestRegexCaptureUnusedGroupIsEmpty(t *testing.T) {
	output, err := regexCapture(packPair(t, "ab", `^(a)(x)?(b)$`))
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	values, _ := stringListType.Unpack(output)
	captures := values[0].([]string)
	if captures[2] != "" {
		t.Errorf("unparticipating group: got %q, want empty string", captures[2])
	}
}

func TestRegexCaptureNoMatchIsFatal(t *testing.T) {
	_, err := regexCapture(packPair(t, "zzz", `^(a)$`))
	if err == nil || err.Error() != "No match found" {
		t.Errorf("expected 'No match found', got %v", err)
	}
}
