package orchestrator

import "strings"

// cannedResponses maps prompt keywords to stock advice, first match wins.
// A slice, not a map: matching order must be deterministic.
var cannedResponses = []struct {
	keyword  string
	response string
}{
	{"error", "Errors usually carry the answer in their first line. Read the message carefully, then check the logs around the time it happened."},
	{"install", "Check the official installation guide for your platform, and confirm the result with the tool's version flag afterwards."},
	{"crash", "Capture the stack trace and the last few log lines before the crash. The failing frame almost always names the culprit."},
	{"slow", "Measure before optimizing. A profiler will point at the hot spot; guessing rarely does."},
	{"performance", "Measure before optimizing. A profiler will point at the hot spot; guessing rarely does."},
	{"test", "Start from a small reproducible case. A focused test usually reveals the problem faster than stepping through the whole system."},
	{"config", "Double-check the configuration file path and its syntax. Many tools ship a validate or dry-run mode for exactly this."},
	{"version", "Pin the exact version and read its changelog. Behavior differences between releases explain more bugs than they should."},
}

const genericFallback = "I could not reach any answer provider and found nothing similar in memory. Try again later, or rephrase the question with more specific terms."

// localFallback synthesizes a canned answer for a prompt no provider and no
// memory entry could serve.
func localFallback(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, c := range cannedResponses {
		if strings.Contains(lower, c.keyword) {
			return c.response
		}
	}
	return genericFallback
}
