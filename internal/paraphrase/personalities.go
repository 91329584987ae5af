package paraphrase

import (
	"sort"
	"strings"
)

// personality holds the fixed template sets one personality frames answers
// with. An empty field disables the corresponding stage for that personality.
type personality struct {
	greetings     []string
	confirmations []string
	useMarkers    bool
}

// personalities is the built-in table. Keys are what callers pass to
// Paraphrase.
var personalities = map[string]personality{
	"neutral": {},
	"friendly": {
		greetings:     []string{"Hey there!", "Hi!", "Great question!", "Happy to help!"},
		confirmations: []string{"Hope that helps!", "Let me know if anything is unclear!"},
		useMarkers:    true,
	},
	"formal": {
		greetings:     []string{"Certainly.", "Of course.", "Understood."},
		confirmations: []string{"I trust this addresses the question.", "Please advise if further detail is required."},
	},
	"playful": {
		greetings:     []string{"Ooh, fun one!", "Let's dive in!", "Buckle up!"},
		confirmations: []string{"Ta-da!", "Wasn't that fun?"},
		useMarkers:    true,
	},
}

// KnownPersonality reports whether name is a built-in personality.
func KnownPersonality(name string) bool {
	_, ok := personalities[name]
	return ok
}

// KnownPersonalities returns the built-in personality names, sorted.
func KnownPersonalities() []string {
	names := make([]string, 0, len(personalities))
	for name := range personalities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// greetingOpeners are lowercase prefixes that mark a text as already greeted.
// Keep in sync with the greeting templates above.
var greetingOpeners = []string{
	"hi", "hello", "hey", "greetings", "sure", "of course", "certainly",
	"understood", "great question", "happy to help", "ooh", "let's dive in",
	"buckle up",
}

// confirmationPhrases are lowercase fragments that mark a text as already
// confirmed. Keep in sync with the confirmation templates above.
var confirmationPhrases = []string{
	"hope that helps", "let me know if anything is unclear",
	"i trust this addresses the question", "please advise if further detail",
	"ta-da", "wasn't that fun",
}

// opensWithGreeting reports whether text already starts with a known greeting.
func opensWithGreeting(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, g := range greetingOpeners {
		if strings.HasPrefix(lower, g) {
			return true
		}
	}
	return false
}

// containsConfirmation reports whether text already carries a confirmation.
func containsConfirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, c := range confirmationPhrases {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// markerTable maps domain keywords to the marker appended to sentences that
// mention them. A slice, not a map: application order must be deterministic.
var markerTable = []struct {
	keyword string
	marker  string
}{
	{"error", "⚠️"},
	{"warning", "⚠️"},
	{"deprecated", "⚠️"},
	{"success", "✅"},
	{"works", "✅"},
	{"tip", "💡"},
	{"idea", "💡"},
	{"note", "📝"},
	{"important", "❗"},
	{"fast", "⚡"},
	{"performance", "⚡"},
	{"bug", "🐛"},
}

// insertMarker appends marker to a sentence chunk, in front of its
// terminator run so the sentence still reads as one unit.
func insertMarker(chunk, marker string) string {
	body := strings.TrimRight(chunk, " \t\n\r")
	tail := chunk[len(body):]
	end := len(body)
	for end > 0 && (body[end-1] == '.' || body[end-1] == '!' || body[end-1] == '?') {
		end--
	}
	if end == len(body) {
		return body + " " + marker + tail
	}
	return body[:end] + " " + marker + body[end:] + tail
}
