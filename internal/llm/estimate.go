package llm

// charsPerToken approximates the usual ~4 chars/token ratio for English log
// text; good enough for pre-call batch sizing, not for billing (billing uses
// the provider's own reported Usage).
const charsPerToken = 4

// EstimateTokens returns a cheap token-count estimate for text, backed by
// cache so a canonical template pattern recurring across a scoring batch
// isn't re-estimated on every occurrence.
func EstimateTokens(cache *TokenCache, text string) int {
	if cache != nil {
		if n, ok := cache.Get(text); ok {
			return n
		}
	}
	n := (len(text) + charsPerToken - 1) / charsPerToken
	if cache != nil {
		cache.Set(text, n)
	}
	return n
}
