package memory

import (
	"strings"
	"unicode"
)

// maxKeywords caps how many tokens a single prompt contributes.
const maxKeywords = 10

// stopwords is a fixed set of common English words that carry no signal for
// lexical matching.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "but": {}, "or": {}, "nor": {},
	"if": {}, "then": {}, "else": {}, "because": {}, "as": {}, "until": {},
	"while": {}, "once": {}, "so": {}, "than": {}, "too": {}, "very": {},
	"just": {}, "only": {}, "again": {}, "further": {}, "not": {}, "no": {},
	"is": {}, "am": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "having": {}, "do": {},
	"does": {}, "did": {}, "doing": {}, "can": {}, "could": {}, "will": {},
	"would": {}, "shall": {}, "should": {}, "may": {}, "might": {}, "must": {},
	"i": {}, "me": {}, "my": {}, "we": {}, "us": {}, "our": {}, "you": {},
	"your": {}, "he": {}, "him": {}, "his": {}, "she": {}, "her": {}, "it": {},
	"its": {}, "they": {}, "them": {}, "their": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "there": {}, "here": {}, "what": {}, "which": {},
	"who": {}, "whom": {}, "whose": {}, "when": {}, "where": {}, "why": {},
	"how": {}, "all": {}, "any": {}, "both": {}, "each": {}, "few": {},
	"more": {}, "most": {}, "other": {}, "some": {}, "such": {}, "own": {},
	"same": {}, "of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "by": {},
	"for": {}, "with": {}, "from": {}, "into": {}, "about": {}, "against": {},
	"between": {}, "through": {}, "during": {}, "before": {}, "after": {},
	"above": {}, "below": {}, "up": {}, "down": {}, "out": {}, "off": {},
	"over": {}, "under": {}, "now": {}, "s": {}, "t": {}, "d": {}, "ll": {},
	"m": {}, "re": {}, "ve": {}, "don": {}, "isn": {}, "won": {},
}

// Keywords extracts up to 10 lowercase keywords from text. Letters and digits
// are kept, every other rune separates tokens, stopwords are dropped, and
// first-occurrence order is preserved. The same extractor runs at write time
// (Insert) and at query time (FindSimilar) so both sides agree on tokens.
func Keywords(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
