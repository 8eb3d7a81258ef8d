package memory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Candidate is one fact proposed by the extractor. It is never persisted as is.
type Candidate struct {
	ShouldWrite bool     `json:"shouldWrite"`
	Content     string   `json:"content"`
	Confidence  float64  `json:"confidence"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	SearchQuery string   `json:"searchQuery,omitempty"`
}

// IsCorrection reports whether the candidate replaces earlier facts.
func (c Candidate) IsCorrection() bool {
	return strings.TrimSpace(c.SearchQuery) != ""
}

const candidateSchemaURL = "mnemo://memory/candidate.json"

const candidateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["shouldWrite", "content", "confidence"],
  "properties": {
    "shouldWrite": {"type": "boolean"},
    "content": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "category": {"type": ["string", "null"]},
    "tags": {"type": ["array", "null"], "items": {"type": "string"}},
    "searchQuery": {"type": ["string", "null"]}
  }
}`

var compiledCandidateSchema = jsonschema.MustCompileString(candidateSchemaURL, candidateSchema)

// ParseResult is the outcome of parsing extractor output.
type ParseResult struct {
	Candidates []Candidate
	// Rejected holds one error per array element that failed validation.
	Rejected []error
}

// ParseCandidates normalizes raw generator output and decodes it as a JSON
// array of candidates. Elements failing schema validation are skipped and
// reported in Rejected. Anything other than a top-level array returns
// ErrMalformedOutput.
func ParseCandidates(raw string) (ParseResult, error) {
	text := NormalizeOutput(raw)
	if text == "" {
		return ParseResult{}, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(text), &elems); err != nil {
		return ParseResult{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}

	var res ParseResult
	for i, elem := range elems {
		var v any
		if err := json.Unmarshal(elem, &v); err != nil {
			res.Rejected = append(res.Rejected, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		if err := compiledCandidateSchema.Validate(v); err != nil {
			res.Rejected = append(res.Rejected, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		var c Candidate
		if err := json.Unmarshal(elem, &c); err != nil {
			res.Rejected = append(res.Rejected, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		res.Candidates = append(res.Candidates, c)
	}
	return res, nil
}
