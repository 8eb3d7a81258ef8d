package memory

import "strings"

// NormalizeOutput strips surrounding whitespace and Markdown code fences,
// with or without a language tag, from raw generator output. The opening
// and closing fences are removed independently.
func NormalizeOutput(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = dropLanguageTag(rest)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// dropLanguageTag removes the tag following an opening fence, if any.
func dropLanguageTag(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		if tag := strings.TrimSpace(s[:i]); !strings.ContainsAny(tag, "[{") {
			return s[i+1:]
		}
		return s
	}
	return strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
}
