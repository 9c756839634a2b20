package agent

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// Scrubber strips secrets (not PHI) from data before it is sent to the LLM
// provider: credentials, tokens, and API keys that might appear in log
// output or config excerpts the agent inspects. IP addresses are
// intentionally NOT scrubbed — the model needs them to reason about network
// topology.
type Scrubber struct {
	keywordPattern *regexp.Regexp
	kvPattern      *regexp.Regexp
}

// defaultKeywords is the fallback used when no keywords are configured. It
// differs from llm.redact_patterns' default, which lists "key" instead of
// "api_key".
var defaultKeywords = []string{"password", "secret", "token", "api_key", "credential"}

// NewScrubber builds a Scrubber from the configured keyword list, falling
// back to defaultKeywords if none are given.
func NewScrubber(keywords []string) *Scrubber {
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	escaped := make([]string, len(keywords))
	for i, k := range keywords {
		escaped[i] = regexp.QuoteMeta(k)
	}
	alt := strings.Join(escaped, "|")

	return &Scrubber{
		keywordPattern: regexp.MustCompile(`(?i)\b(?:` + alt + `)\b`),
		kvPattern:      regexp.MustCompile(`(?i)(password|secret|token|api[_-]?key|credential)\s*[:=]\s*\S+`),
	}
}

// hashSuffix returns the first 8 hex chars of the value's SHA-256 hash, so
// scrubbed logs can still be correlated without revealing the original
// value.
func hashSuffix(value string) string {
	h := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", h[:4])
}

// ScrubString replaces key=value / key: value secret assignments with a
// tagged, hash-suffixed placeholder.
func (s *Scrubber) ScrubString(input string) string {
	return s.kvPattern.ReplaceAllStringFunc(input, func(match string) string {
		key := s.kvPattern.FindStringSubmatch(match)[1]
		return fmt.Sprintf("%s=[REDACTED-%s]", key, hashSuffix(match))
	})
}

// ScrubMap recursively scrubs all string values in a map. The original is
// not modified.
func (s *Scrubber) ScrubMap(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = s.scrubValue(v)
	}
	return out
}

func (s *Scrubber) scrubValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return s.ScrubString(val)
	case map[string]interface{}:
		return s.ScrubMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = s.scrubValue(item)
		}
		return out
	default:
		return v
	}
}

// ContainsSecret reports whether input mentions any configured secret
// keyword, independent of whether it matched the stricter key=value form.
func (s *Scrubber) ContainsSecret(input string) bool {
	return s.keywordPattern.MatchString(input)
}
