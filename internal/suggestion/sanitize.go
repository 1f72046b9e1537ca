package suggestion

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// wsRun matches any run of two or more whitespace characters, including
// Unicode spaces such as U+00A0, matching what [unicode.IsSpace] trims.
var wsRun = regexp.MustCompile(`[\s\p{Zs}]{2,}`)

// Sanitize strips known backend artifacts from suggestion text: trailing
// standalone "undefined" or "null" tokens (case-insensitive), whitespace
// runs, and surrounding whitespace. The transform is idempotent.
func Sanitize(s string) string {
	s = stripTrailingArtifacts(s)
	s = wsRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripTrailingArtifacts removes every trailing standalone occurrence of
// "undefined" or "null". Stripping all of them, not just one, keeps
// Sanitize idempotent for inputs like "x null null".
func stripTrailingArtifacts(s string) string {
	for {
		trimmed := strings.TrimRightFunc(s, unicode.IsSpace)
		tail, ok := trailingArtifact(trimmed)
		if !ok {
			return s
		}
		s = trimmed[:len(trimmed)-len(tail)]
	}
}

// trailingArtifact reports the artifact token ending s, if any. The token
// must be standalone: the whole string, or preceded by whitespace.
func trailingArtifact(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, token := range []string{"undefined", "null"} {
		if !strings.HasSuffix(lower, token) {
			continue
		}
		rest := s[:len(s)-len(token)]
		if rest == "" {
			return s, true
		}
		if last, _ := utf8.DecodeLastRuneInString(rest); unicode.IsSpace(last) {
			return s[len(rest):], true
		}
	}
	return "", false
}
