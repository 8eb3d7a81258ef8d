package memory

import (
	"errors"
	"testing"
)

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		raw          string
		wantErr      bool
		wantCount    int
		wantRejected int
	}{
		{
			name:      "fenced array",
			raw:       "```json\n[{\"shouldWrite\":true,\"content\":\"The user is 35.\",\"confidence\":0.9,\"category\":\"personal\",\"tags\":[\"age\"]}]\n```",
			wantCount: 1,
		},
		{
			name:      "empty array",
			raw:       "[]",
			wantCount: 0,
		},
		{
			name:    "single object",
			raw:     `{"shouldWrite":true,"content":"x","confidence":0.9}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     "I could not find any facts.",
			wantErr: true,
		},
		{
			name:    "blank",
			raw:     "  ",
			wantErr: true,
		},
		{
			name: "invalid elements skipped",
			raw: `[
				{"shouldWrite":true,"content":"The user is 35.","confidence":0.9,"tags":["age"]},
				{"shouldWrite":"yes","content":"bad type","confidence":0.9},
				{"shouldWrite":true,"content":"out of range","confidence":1.5},
				{"content":"missing flag","confidence":0.5},
				42
			]`,
			wantCount:    1,
			wantRejected: 4,
		},
		{
			name:      "null search query accepted",
			raw:       `[{"shouldWrite":true,"content":"c","confidence":0.5,"searchQuery":null}]`,
			wantCount: 1,
		},
		{
			name:      "null tags accepted",
			raw:       `[{"shouldWrite":true,"content":"The user is 35.","confidence":0.9,"category":"personal","tags":null}]`,
			wantCount: 1,
		},
		{
			name:      "null category accepted",
			raw:       `[{"shouldWrite":true,"content":"The user is 35.","confidence":0.9,"category":null,"tags":["age"]}]`,
			wantCount: 1,
		},
		{
			name:      "trailing fence only",
			raw:       "[{\"shouldWrite\":true,\"content\":\"c\",\"confidence\":0.5}]\n```",
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := ParseCandidates(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("err = %v, want ErrMalformedOutput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCandidates: %v", err)
			}
			if len(res.Candidates) != tt.wantCount {
				t.Errorf("candidates = %d, want %d", len(res.Candidates), tt.wantCount)
			}
			if len(res.Rejected) != tt.wantRejected {
				t.Errorf("rejected = %d, want %d (%v)", len(res.Rejected), tt.wantRejected, res.Rejected)
			}
		})
	}
}

func TestParseCandidates_Fields(t *testing.T) {
	t.Parallel()

	res, err := ParseCandidates(`[{"shouldWrite":true,"content":"The user is 38.","confidence":0.8,"category":"personal","tags":["age"],"searchQuery":"age"}]`)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	c := res.Candidates[0]
	if !c.ShouldWrite || c.Content != "The user is 38." || c.Confidence != 0.8 || c.Category != "personal" {
		t.Errorf("candidate = %+v", c)
	}
	if !c.IsCorrection() || c.SearchQuery != "age" {
		t.Errorf("expected correction for age, got %+v", c)
	}
	if len(c.Tags) != 1 || c.Tags[0] != "age" {
		t.Errorf("tags = %v", c.Tags)
	}
}
