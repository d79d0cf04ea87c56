package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "  1. Open Proxy.\n2. Toggle intercept.  ", "1. Open Proxy.\n2. Toggle intercept."},
		{"markdown fence", "```markdown\n1. Open Proxy.\n2. Toggle intercept.\n```", "1. Open Proxy.\n2. Toggle intercept."},
		{"bare fence", "```\n1. Open Proxy.\n```", "1. Open Proxy."},
		{"unterminated fence", "```\n1. Open Proxy.", "```\n1. Open Proxy."},
		{"inner fence is kept", "Plan:\n```\nstep\n```", "Plan:\n```\nstep\n```"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}
