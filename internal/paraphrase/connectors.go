package paraphrase

import (
	"math/rand"
	"strings"
	"unicode"
	"unicode/utf8"
)

// connectorClasses groups discourse connectors by function: additive,
// contrast, causal, example. Substitution always stays within one class.
var connectorClasses = [][]string{
	{"additionally", "furthermore", "moreover", "in addition", "also"},
	{"however", "on the other hand", "nevertheless", "nonetheless", "that said"},
	{"therefore", "consequently", "as a result", "thus", "hence"},
	{"for example", "for instance"},
}

// matchConnector reports the class index and matched connector when body
// opens with one. A comma or space must follow so longer words are not cut
// ("alsoran" does not match "also").
func matchConnector(body string) (int, string) {
	for ci, class := range connectorClasses {
		for _, conn := range class {
			if len(body) < len(conn) {
				continue
			}
			if !strings.EqualFold(body[:len(conn)], conn) {
				continue
			}
			if len(body) == len(conn) || body[len(conn)] == ',' || body[len(conn)] == ' ' {
				return ci, conn
			}
		}
	}
	return -1, ""
}

// applyConnectors replaces sentence-leading connectors with another member of
// the same class, each occurrence drawn independently against PConnector.
func (p *Paraphraser) applyConnectors(text string) string {
	chunks := splitSentences(text)
	changed := false
	for i, chunk := range chunks {
		trimmed := strings.TrimLeft(chunk, " \t\n\r")
		lead := chunk[:len(chunk)-len(trimmed)]
		ci, conn := matchConnector(trimmed)
		if conn == "" {
			continue
		}
		if p.rng.Float64() >= p.cfg.PConnector {
			continue
		}
		repl := pickReplacement(p.rng, connectorClasses[ci], conn)
		chunks[i] = lead + matchCase(repl, trimmed) + trimmed[len(conn):]
		changed = true
	}
	if !changed {
		return text
	}
	return strings.Join(chunks, "")
}

// pickReplacement returns a uniformly chosen member of class other than conn.
func pickReplacement(rng *rand.Rand, class []string, conn string) string {
	others := make([]string, 0, len(class)-1)
	for _, c := range class {
		if c != conn {
			others = append(others, c)
		}
	}
	return others[rng.Intn(len(others))]
}

// matchCase upper-cases the replacement's first rune when the original text
// opened with an upper-case rune.
func matchCase(repl, original string) string {
	r, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(r) {
		return repl
	}
	fr, size := utf8.DecodeRuneInString(repl)
	return string(unicode.ToUpper(fr)) + repl[size:]
}
