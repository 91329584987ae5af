// Package paraphrase rewrites candidate answers for variety: personality
// framing, connector substitution, keyword markers, sentence reordering, and
// a bounded length, with a structural repair pass for answers carrying code.
package paraphrase

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

var ErrUnknownPersonality = errors.New("unknown personality")

// Config holds the chance of each optional rewrite stage firing. Zero values
// disable the corresponding stage, 1 forces it, so tests pin behavior without
// caring about seeds.
type Config struct {
	PGreet     float64
	PConfirm   float64
	PConnector float64
	PReorder   float64
}

// DefaultConfig returns the stage probabilities used in production.
func DefaultConfig() Config {
	return Config{
		PGreet:     0.5,
		PConfirm:   0.4,
		PConnector: 0.5,
		PReorder:   0.3,
	}
}

// Paraphraser rewrites answers so repeated queries do not echo identical
// text. It never changes the meaning of prose and never edits code beyond
// structural repair.
type Paraphraser struct {
	cfg Config

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New returns a Paraphraser drawing randomness from rng. A nil rng gets a
// time-seeded source; tests pass a fixed seed instead.
func New(cfg Config, rng *rand.Rand) *Paraphraser {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Paraphraser{cfg: cfg, rng: rng}
}

// segment is a run of either prose or code. Joining segment texts in order
// reproduces the input exactly.
type segment struct {
	text string
	code bool
}

// Paraphrase rewrites text in the voice of the named personality and bounds
// the result to maxChars (0 means unbounded). Code blocks are structurally
// repaired, never reworded. The error is non-nil only for an unknown
// personality; the input text itself cannot fail.
func (p *Paraphraser) Paraphrase(text, personalityName string, maxChars int) (string, error) {
	pers, ok := personalities[personalityName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersonality, personalityName)
	}
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	segs := splitSegments(text)
	hasCode, hasProse := false, false
	for i := range segs {
		if segs[i].code {
			segs[i].text = repairSegment(segs[i].text)
			hasCode = true
		} else {
			hasProse = true
		}
	}

	if hasProse {
		p.applyFraming(segs, pers)
		for i := range segs {
			if !segs[i].code {
				segs[i].text = p.applyConnectors(segs[i].text)
			}
		}
		if pers.useMarkers {
			applyMarkers(segs)
		}
		if !hasCode && len(segs) == 1 && countSentences(segs[0].text) >= 3 &&
			p.rng.Float64() < p.cfg.PReorder {
			segs[0].text = moveSecondToEnd(segs[0].text)
		}
	}

	var b strings.Builder
	for _, seg := range segs {
		b.WriteString(seg.text)
	}
	out := b.String()
	if maxChars > 0 && len(out) > maxChars {
		out = truncateAtBoundary(out, maxChars)
	}
	return out, nil
}

// applyFraming prepends a greeting to the first prose segment and appends a
// confirmation to the last one, each behind its own probability draw. Text
// that already opens with a greeting or closes with a confirmation is left
// alone so repeated paraphrasing does not stack frames.
func (p *Paraphraser) applyFraming(segs []segment, pers personality) {
	firstProse, lastProse := -1, -1
	for i := range segs {
		if segs[i].code || strings.TrimSpace(segs[i].text) == "" {
			continue
		}
		if firstProse < 0 {
			firstProse = i
		}
		lastProse = i
	}
	if firstProse < 0 {
		return
	}

	if len(pers.greetings) > 0 && !opensWithGreeting(segs[firstProse].text) &&
		p.rng.Float64() < p.cfg.PGreet {
		g := pers.greetings[p.rng.Intn(len(pers.greetings))]
		segs[firstProse].text = g + " " + segs[firstProse].text
	}
	if len(pers.confirmations) > 0 && !containsConfirmation(segs[lastProse].text) &&
		p.rng.Float64() < p.cfg.PConfirm {
		c := pers.confirmations[p.rng.Intn(len(pers.confirmations))]
		t := segs[lastProse].text
		trimmed := strings.TrimRight(t, " \t\n")
		segs[lastProse].text = trimmed + " " + c + t[len(trimmed):]
	}
}

// applyMarkers decorates the first occurrence of each marker keyword across
// the prose segments. A marker is used at most once per answer.
func applyMarkers(segs []segment) {
	used := make(map[string]bool, len(markerTable))
	for i := range segs {
		if segs[i].code {
			continue
		}
		chunks := splitSentences(segs[i].text)
		for j, chunk := range chunks {
			lower := strings.ToLower(chunk)
			for _, m := range markerTable {
				if used[m.marker] || strings.Contains(chunk, m.marker) {
					continue
				}
				if !containsWord(lower, m.keyword) {
					continue
				}
				chunks[j] = insertMarker(chunks[j], m.marker)
				used[m.marker] = true
			}
		}
		segs[i].text = strings.Join(chunks, "")
	}
}

// containsWord reports whether lower contains w bounded by non-word bytes.
func containsWord(lower, w string) bool {
	for from := 0; ; {
		idx := strings.Index(lower[from:], w)
		if idx < 0 {
			return false
		}
		idx += from
		before := idx == 0 || !isWordByte(lower[idx-1])
		afterIdx := idx + len(w)
		after := afterIdx == len(lower) || !isWordByte(lower[afterIdx])
		if before && after {
			return true
		}
		from = idx + 1
	}
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// splitSegments cuts text into alternating prose and code segments. Fenced
// blocks are code; unfenced text is code only when the whole of it reads as
// bare source. Segment texts concatenate back to the exact input.
func splitSegments(text string) []segment {
	if !strings.Contains(text, "```") {
		return []segment{{text: text, code: looksLikeCode(text)}}
	}

	var segs []segment
	var cur strings.Builder
	inCode := false
	flush := func(code bool) {
		if cur.Len() == 0 {
			return
		}
		segs = append(segs, segment{text: cur.String(), code: code})
		cur.Reset()
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inCode {
				cur.WriteString(line)
				flush(true)
				inCode = false
			} else {
				flush(false)
				inCode = true
				cur.WriteString(line)
			}
			continue
		}
		cur.WriteString(line)
	}
	flush(inCode)
	return segs
}
