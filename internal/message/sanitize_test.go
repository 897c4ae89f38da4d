package message

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		want      string
	}{
		{
			name:      "plain summary untouched",
			candidate: "Add retry to the upload path",
			want:      "Add retry to the upload path",
		},
		{
			name:      "trims surrounding whitespace",
			candidate: "  fix: handle empty input \n",
			want:      "fix: handle empty input",
		},
		{
			name:      "strips parenthesized issue reference",
			candidate: "Add feature (fixes #42)",
			want:      "Add feature",
		},
		{
			name:      "strips bare issue reference",
			candidate: "Handle overflow, closes #7, in the parser",
			want:      "Handle overflow, , in the parser",
		},
		{
			name:      "only issue reference becomes empty",
			candidate: "fixes #42",
			want:      "",
		},
		{
			name:      "drops merge boilerplate line",
			candidate: "Merge pull request #12 from fork/feature\nAdd streaming parser",
			want:      "Add streaming parser",
		},
		{
			name:      "keeps only the first line",
			candidate: "Rework scheduler\n\nLong explanation nobody asked for",
			want:      "Rework scheduler",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.candidate); got != tt.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.candidate, got, tt.want)
			}
		})
	}
}
