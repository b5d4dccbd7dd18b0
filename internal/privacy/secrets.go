// Package privacy redacts credentials from text that leaves the process,
// such as provider error bodies shown in the analysis panel or logged DSNs.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

const marker = "[REDACTED]"

// secretPatterns match credential formats that analysis providers and
// backends are known to echo back in error bodies.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[a-zA-Z0-9_-]{20,}['"]?`),
	regexp.MustCompile(`(?i)(secret[_-]?key|secret[_-]?token|auth[_-]?token|access[_-]?token)\s*[:=]\s*['"]?[a-zA-Z0-9_-]{20,}['"]?`),
	regexp.MustCompile(`sk-or-v1-[a-zA-Z0-9]{20,}`), // OpenRouter
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), // JWT
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
}

// ContainsSecrets reports whether text contains anything that looks like a
// credential.
func ContainsSecrets(text string) bool {
	if text == "" {
		return false
	}
	for _, pattern := range secretPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// RedactSecrets replaces detected credentials with a marker. Key names in
// key=value and key: value forms are kept.
func RedactSecrets(text string) string {
	if text == "" {
		return text
	}

	result := text
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if idx := strings.IndexAny(match, "=:"); idx != -1 {
				return match[:idx+1] + marker
			}
			if len(match) > 8 {
				return match[:4] + "..." + marker
			}
			return marker
		})
	}
	return result
}

// RedactDSN hides the password of a URL-form database DSN. Values that do
// not parse as URLs are passed through RedactSecrets.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return RedactSecrets(dsn)
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return strings.Replace(u.String(), "xxxxx", marker, 1)
}
