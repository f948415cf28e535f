package findings

import "strings"

const fingerprintMaxLen = 240

// stopwords are dropped from a finding's text before fingerprinting so that
// two findings differing only in filler words ("an error occurred in the
// service" vs "error occurred in service") still fingerprint identically.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "was": {}, "were": {}, "are": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "of": {}, "and": {}, "or": {},
	"by": {}, "for": {}, "with": {}, "this": {}, "that": {}, "it": {},
}

// fingerprint computes the canonical dedup key for a finding's text: lowered,
// whitespace-normalized, stopwords removed, truncated to fingerprintMaxLen
// (spec §4.G).
func fingerprint(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	kept := make([]string, 0, len(fields))
	for _, w := range fields {
		if _, skip := stopwords[w]; skip {
			continue
		}
		kept = append(kept, w)
	}
	fp := strings.Join(kept, " ")
	if len(fp) > fingerprintMaxLen {
		fp = fp[:fingerprintMaxLen]
	}
	return fp
}

// jaccard returns the token-set similarity of two fingerprints, in [0,1].
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
