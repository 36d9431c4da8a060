package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"amount": 50000}`,
			want:    `{"amount": 50000}`,
		},
		{
			name:    "markdown code block",
			content: "Here you go:\n```json\n{\"amount\": 50000}\n```\nDone.",
			want:    `{"amount": 50000}`,
		},
		{
			name:    "code block without language",
			content: "```\n{\"rank\": 1}\n```",
			want:    `{"rank": 1}`,
		},
		{
			name:    "trailing comma removed",
			content: `{"a": 1, "b": 2,}`,
			want:    `{"a": 1, "b": 2}`,
		},
		{
			name:    "line comment stripped",
			content: "{\n\"a\": 1 // note\n}",
			want:    "{\n\"a\": 1\n}",
		},
		{
			name:    "slashes inside string preserved",
			content: `{"url": "http://example.com"}`,
			want:    `{"url": "http://example.com"}`,
		},
		{
			name:    "no json",
			content: "sorry, I cannot help with that",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.content)
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare array",
			content: `[{"rank": 1}, {"rank": 2}]`,
			want:    `[{"rank": 1}, {"rank": 2}]`,
		},
		{
			name:    "markdown code block",
			content: "```json\n[1, 2, 3]\n```",
			want:    `[1, 2, 3]`,
		},
		{
			name:    "trailing comma",
			content: `[1, 2, 3,]`,
			want:    `[1, 2, 3]`,
		},
		{
			name:    "no array",
			content: "nothing here",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONArray(tt.content)
			if got != tt.want {
				t.Errorf("ExtractJSONArray() = %q, want %q", got, tt.want)
			}
		})
	}
}
