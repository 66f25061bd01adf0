// Package jsonutil holds small JSON-handling helpers shared by the LLM
// response parsers (Pass 1 extraction, Pass 2 consolidation).
package jsonutil

import "strings"

// ExtractOutermostObject locates the outermost {...} in a string that may
// be wrapped in explanatory prose, returning the substring from the first
// '{' to the last '}' inclusive. Returns "" if no brace pair is found.
func ExtractOutermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
