// Package templates implements the Template & Cache manager: canonicalizing
// event messages to stable fingerprints, resolving/creating MessageTemplate
// rows, and fronting their cached score vectors with a Redis TTL cache so
// identical-pattern events across a window are scored by the LLM Adapter at
// most once per score_cache_ttl_minutes.
package templates

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	ipv4Pattern   = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	ipv6Pattern   = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)
	macPattern    = regexp.MustCompile(`\b(?:[0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2}\b`)
	uuidPattern   = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	isoTsPattern  = regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?\b`)
	numericPattern = regexp.MustCompile(`\b[0-9a-fA-F]{4,}\b`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Canonicalize derives the stable pattern used for fingerprinting, per
// spec §4.B: lowercase, substitute volatile tokens with class placeholders,
// collapse whitespace, truncate to maxLength.
func Canonicalize(message string, maxLength int) string {
	s := strings.ToLower(message)
	s = ipv6Pattern.ReplaceAllString(s, "<ipv6>")
	s = ipv4Pattern.ReplaceAllString(s, "<ipv4>")
	s = macPattern.ReplaceAllString(s, "<mac>")
	s = uuidPattern.ReplaceAllString(s, "<uuid>")
	s = isoTsPattern.ReplaceAllString(s, "<timestamp>")
	s = numericPattern.ReplaceAllString(s, "<num>")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if maxLength <= 0 {
		maxLength = 512
	}
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	return s
}

// Fingerprint returns a stable 128-bit hash of a canonicalized message,
// scoped per-system so identical messages from different systems never
// collide on the same template.
func Fingerprint(systemID, canonical string) string {
	h := md5.Sum([]byte(systemID + "\x00" + canonical))
	return hex.EncodeToString(h[:])
}
