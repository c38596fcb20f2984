package logging

import (
	"net/url"
	"regexp"
	"strings"
)

var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"cookie",
	"credential",
	"api_key",
	"apikey",
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{8,}`),
	regexp.MustCompile(`(?i)([?&]token=)[^&\s"]+`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]+`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces bearer tokens, token query parameters and JWTs in s.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		if pattern.NumSubexp() > 0 {
			result = pattern.ReplaceAllString(result, "${1}"+RedactedValue)
			continue
		}
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactURL hides the token query parameter and any userinfo password of raw.
// Unparseable input falls back to Redact.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
		}
	}
	q := u.Query()
	changed := false
	for key := range q {
		if IsSensitiveField(key) {
			q.Set(key, RedactedValue)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	out := u.String()
	return strings.ReplaceAll(out, url.QueryEscape(RedactedValue), RedactedValue)
}

// RedactMap redacts sensitive fields in a settings map, recursing into nested maps.
func RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case IsSensitiveField(k):
			if s, ok := v.(string); ok && s == "" {
				result[k] = ""
			} else {
				result[k] = RedactedValue
			}
		default:
			switch val := v.(type) {
			case map[string]any:
				result[k] = RedactMap(val)
			case string:
				result[k] = Redact(val)
			default:
				result[k] = v
			}
		}
	}
	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
