package textnorm

import "testing"

func runStringTransformationTest(t *testing.T, testName string,
	transformFunc func(string) string, testCases []struct {
		name     string
		input    string
		expected string
	}) {
	t.Helper()
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			result := transformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", testName, result, tt.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple title",
			input:    "One More Time",
			expected: "one more time",
		},
		{
			name:     "Whitespace runs collapsed",
			input:    "  Daft   Punk\t ",
			expected: "daft punk",
		},
		{
			name:     "Accents folded",
			input:    "Beyoncé",
			expected: "beyonce",
		},
		{
			name:     "Empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "Punctuation preserved",
			input:    "P!nk",
			expected: "p!nk",
		},
	}

	runStringTransformationTest(t, "Normalize", Normalize, tests)
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"One More Time (Radio Edit)",
		"  Daft   Punk ",
		"Beyoncé",
		"",
		"AC/DC - Back In Black",
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestStripAnnotations(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Feat fragment removed",
			input:    "Song (feat. Someone)",
			expected: "song",
		},
		{
			name:     "Bracketed featuring removed",
			input:    "Song [featuring Someone]",
			expected: "song",
		},
		{
			name:     "Remix fragment removed",
			input:    "Song (Remix)",
			expected: "song",
		},
		{
			name:     "Radio edit kept as words",
			input:    "One More Time (Radio Edit)",
			expected: "one more time radio edit",
		},
		{
			name:     "Punctuation stripped",
			input:    "AC/DC - T.N.T.",
			expected: "ac dc t n t",
		},
		{
			name:     "Empty input",
			input:    "",
			expected: "",
		},
	}

	runStringTransformationTest(t, "StripAnnotations", StripAnnotations, tests)
}

func TestStripAnnotationsIdempotent(t *testing.T) {
	inputs := []string{
		"Song (feat. Someone)",
		"One More Time (Radio Edit)",
		"AC/DC - T.N.T.",
	}

	for _, input := range inputs {
		once := StripAnnotations(input)
		twice := StripAnnotations(once)
		if once != twice {
			t.Errorf("StripAnnotations not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestStripVariantTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Radio edit removed",
			input:    "One More Time (Radio Edit)",
			expected: "One More Time",
		},
		{
			name:     "Club mix removed",
			input:    "Song [Club Mix]",
			expected: "Song",
		},
		{
			name:     "Feat removed",
			input:    "Song (feat. Someone)",
			expected: "Song",
		},
		{
			name:     "Casing preserved",
			input:    "One More Time",
			expected: "One More Time",
		},
		{
			name:     "Unrelated parenthesis kept",
			input:    "Song (Part II)",
			expected: "Song (Part II)",
		},
	}

	runStringTransformationTest(t, "StripVariantTags", StripVariantTags, tests)
}
