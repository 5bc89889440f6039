// Package sanitize scrubs assistant text and tool output before it is
// persisted or handed to another agent: secrets that leaked into a shell
// command's output, and control characters that would corrupt the session
// event log.
package sanitize

import (
	"regexp"
	"strings"
)

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*["']?[A-Za-z0-9_\-./+]{8,}["']?`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.]{10,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
}

const redacted = "[redacted]"

// Text redacts anything that looks like a credential and strips non-printable
// control characters from s.
func Text(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return stripControl(s)
}

// ToolOutput applies the same scrubbing to a tool's captured stdout/stderr.
func ToolOutput(s string) string {
	return Text(s)
}

func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
