// Package llmutil cleans up model output before it is used as plain text.
package llmutil

import (
	"regexp"
	"strings"
)

// fenceRegex matches a response that is one fenced block, with any language
// tag. \x60 is a backtick.
var fenceRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*[ \t]*\n?(.*?)\\s*\x60\x60\x60$")

// StripCodeFence returns the body of a response wrapped in a single
// markdown code block, or the trimmed response when it is not wrapped.
func StripCodeFence(response string) string {
	response = strings.TrimSpace(response)
	if !strings.HasPrefix(response, "```") {
		return response
	}
	if m := fenceRegex.FindStringSubmatch(response); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return response
}
