package providers

import (
	"regexp"
	"strings"
)

var (
	scriptTagRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	eventAttrRe = regexp.MustCompile(`(?i)\bon\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	badSchemeRe = regexp.MustCompile(`(?i)\b(javascript|data)\s*:`)
)

// Sanitize normalizes untrusted user text before it reaches a provider:
// truncates to maxLen, strips script tags, inline event handlers and
// javascript:/data: URI schemes, then trims whitespace.
func Sanitize(input string, maxLen int) string {
	if maxLen > 0 && len(input) > maxLen {
		input = input[:maxLen]
	}
	input = scriptTagRe.ReplaceAllString(input, "")
	input = eventAttrRe.ReplaceAllString(input, "")
	input = badSchemeRe.ReplaceAllString(input, "")
	return strings.TrimSpace(input)
}
