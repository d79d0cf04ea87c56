// Package progress reads the plan progress block that the agent model writes
// into its thought text.
package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// Header opens a progress block inside a thought.
const Header = "## PROGRESS TRACKING"

// Progress is the plan position reported by one thought.
type Progress struct {
	Current        string `json:"current,omitempty"`
	CompletedCount int    `json:"completed_count"`
	RemainingCount int    `json:"remaining_count"`
	Completed      []int  `json:"completed,omitempty"`
	Remaining      []int  `json:"remaining,omitempty"`
}

var (
	headerRegex = regexp.MustCompile(`(?i)##\s*PROGRESS\s+TRACKING`)
	// Labels may be preceded by any mix of emoji, bullets and emphasis markers.
	labelRegex = regexp.MustCompile(`(?i)^[^\p{L}\p{N}]*(completed|current|remaining)[\s*_]*[:：]\s*(.*)$`)
	stepRegex  = regexp.MustCompile(`(?i)\bstep\s*(\d+)`)
)

// Extract parses the first progress block in thought. The block ends at the
// next heading, or at a blank line or code fence once a label has been read.
// It returns nil when
// there is no block, when the block carries none of the Completed, Current or
// Remaining lines, or when parsing fails for any reason.
func Extract(thought string) (p *Progress) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
		}
	}()

	loc := headerRegex.FindStringIndex(thought)
	if loc == nil {
		return nil
	}

	var (
		result Progress
		found  bool
	)
	for _, line := range strings.Split(thought[loc[1]:], "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			// Next section, or a second progress block. Only the first counts.
			break
		}
		if found && (trimmed == "" || strings.HasPrefix(trimmed, "```")) {
			break
		}
		m := labelRegex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		steps := stepNumbers(value)

		switch strings.ToLower(m[1]) {
		case "completed":
			result.Completed = steps
			result.CompletedCount = len(steps)
		case "remaining":
			result.Remaining = steps
			result.RemainingCount = len(steps)
		case "current":
			if len(steps) > 0 {
				result.Current = "Step " + strconv.Itoa(steps[0])
			} else {
				result.Current = strings.TrimSpace(strings.Trim(value, "[]"))
			}
		}
		found = true
	}

	if !found {
		return nil
	}
	return &result
}

func stepNumbers(s string) []int {
	matches := stepRegex.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
