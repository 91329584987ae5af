package paraphrase

import (
	"log/slog"
	"strings"
	"unicode"
)

const (
	langPython     = "python"
	langJavaScript = "javascript"
	langGo         = "go"
	langJava       = "java"
	langC          = "c"
)

// langSignatures holds distinctive tokens per language, counted by
// DetectLanguage. Slice order fixes tie-breaking.
var langSignatures = []struct {
	name   string
	tokens []string
}{
	{langPython, []string{"def ", "elif ", "import ", "self.", "print(", "lambda ", "None", "True", "False"}},
	{langGo, []string{"func ", ":=", "package ", "fmt.", "nil", "chan ", "defer ", "go func"}},
	{langJavaScript, []string{"const ", "let ", "=>", "function ", "console.", "===", "var "}},
	{langJava, []string{"public ", "private ", "System.out", "void ", "extends ", "implements ", "@Override"}},
	{langC, []string{"#include", "printf(", "int main", "->", "struct ", "sizeof", "char *"}},
}

// DetectLanguage guesses the language of a code snippet from keyword density
// and structural cues. It returns one of the language constants, or "" when
// the signal is too weak to act on.
func DetectLanguage(code string) string {
	scores := make(map[string]int, len(langSignatures))
	for _, sig := range langSignatures {
		for _, tok := range sig.tokens {
			scores[sig.name] += strings.Count(code, tok)
		}
	}

	stripped := stripStringsAndComments(code)
	for _, line := range strings.Split(stripped, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if strings.HasSuffix(t, ":") {
			scores[langPython]++
		}
		if strings.HasSuffix(t, ";") {
			scores[langJavaScript]++
			scores[langJava]++
			scores[langC]++
		}
		if strings.HasSuffix(t, "{") || t == "}" {
			scores[langGo]++
			scores[langJavaScript]++
			scores[langJava]++
			scores[langC]++
		}
	}
	// Indented lines without any braces lean python.
	if !strings.Contains(stripped, "{") {
		for _, line := range strings.Split(stripped, "\n") {
			if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
				scores[langPython]++
				break
			}
		}
	}

	best, bestScore := "", 1
	for _, sig := range langSignatures {
		if scores[sig.name] > bestScore {
			best, bestScore = sig.name, scores[sig.name]
		}
	}
	return best
}

// Repair detects the language of code and applies the structural fixes for
// it. Unknown languages pass through untouched; syntactically valid code
// comes back byte-for-byte unchanged.
func Repair(code string) string {
	return repairWithLang(code, DetectLanguage(code))
}

func repairWithLang(code, lang string) string {
	switch lang {
	case langPython:
		code = normalizeIndentation(code)
		code = addMissingColons(code)
		if names := undefinedBeforeAssignment(code); len(names) > 0 {
			// No safe minimal edit exists for this defect class.
			slog.Warn("code repair: identifiers used before assignment left unedited",
				"language", lang, "identifiers", names)
		}
	case langGo:
		code = balanceBraces(code)
	case langJavaScript, langJava, langC:
		code = balanceBraces(code)
		code = addMissingSemicolons(code)
	default:
		return code
	}
	validateStructure(code, lang)
	return code
}

// repairSegment structurally repairs one code segment. Fenced segments keep
// their fence lines untouched, and the fence info string wins over detection.
func repairSegment(seg string) string {
	if !strings.HasPrefix(strings.TrimSpace(seg), "```") {
		return Repair(seg)
	}
	nl := strings.Index(seg, "\n")
	if nl < 0 {
		return seg
	}
	opening := seg[:nl+1]
	rest := seg[nl+1:]
	closing := ""
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		lineStart := strings.LastIndex(rest[:idx], "\n") + 1
		closing = rest[lineStart:]
		rest = rest[:lineStart]
	}
	lang := fenceLanguage(opening)
	if lang == "" {
		lang = DetectLanguage(rest)
	}
	return opening + repairWithLang(rest, lang) + closing
}

// fenceLanguage maps a fence info string like "```python" to a language
// constant, or "" when the info string is absent or unknown.
func fenceLanguage(opening string) string {
	info := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(opening), "```"))
	switch strings.ToLower(info) {
	case "python", "py":
		return langPython
	case "javascript", "js", "node":
		return langJavaScript
	case "go", "golang":
		return langGo
	case "java":
		return langJava
	case "c":
		return langC
	}
	return ""
}

// looksLikeCode reports whether unfenced text reads as bare source code:
// at least two code-shaped lines making up 60% or more of the content.
func looksLikeCode(text string) bool {
	nonEmpty, codeish := 0, 0
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		nonEmpty++
		if codeishLine(line, t) {
			codeish++
		}
	}
	return codeish >= 2 && codeish*10 >= nonEmpty*6
}

func codeishLine(raw, trimmed string) bool {
	// Prose sentences end with punctuation code lines almost never use.
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
		return false
	}
	if strings.HasSuffix(trimmed, "{") || strings.HasSuffix(trimmed, "}") ||
		strings.HasSuffix(trimmed, ";") || strings.HasSuffix(trimmed, ":") {
		return true
	}
	if strings.Contains(trimmed, ":=") || strings.Contains(trimmed, "=>") {
		return true
	}
	switch firstWord(trimmed) {
	case "def", "func", "const", "let", "var", "import", "from", "class",
		"public", "private", "return", "if", "elif", "for", "while", "package",
		"print", "try", "except":
		return true
	}
	return strings.HasPrefix(raw, "    ") || strings.HasPrefix(raw, "\t")
}

// firstWord returns the leading identifier characters of s.
func firstWord(s string) string {
	for i, r := range s {
		if !unicode.IsLetter(r) && r != '_' {
			return s[:i]
		}
	}
	return s
}

// stripStringsAndComments blanks string-literal contents and comments so the
// structural heuristics do not trip on them. Quote characters and newlines
// are kept, every blanked byte becomes a space, and the result maps 1:1 onto
// the input by byte offset.
func stripStringsAndComments(code string) string {
	out := make([]byte, 0, len(code))
	var quote byte
	inLine, inBlock := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inLine:
			if c == '\n' {
				inLine = false
				out = append(out, c)
			} else {
				out = append(out, ' ')
			}
		case inBlock:
			if c == '*' && i+1 < len(code) && code[i+1] == '/' {
				inBlock = false
				out = append(out, ' ', ' ')
				i++
			} else if c == '\n' {
				out = append(out, c)
			} else {
				out = append(out, ' ')
			}
		case quote != 0:
			switch {
			case c == '\\' && quote != '`' && i+1 < len(code):
				out = append(out, ' ')
				if code[i+1] == '\n' {
					out = append(out, '\n')
				} else {
					out = append(out, ' ')
				}
				i++
			case c == quote:
				quote = 0
				out = append(out, c)
			case c == '\n':
				out = append(out, c)
			default:
				out = append(out, ' ')
			}
		default:
			switch {
			case c == '\'' || c == '"' || c == '`':
				quote = c
				out = append(out, c)
			case c == '/' && i+1 < len(code) && code[i+1] == '/':
				inLine = true
				out = append(out, ' ', ' ')
				i++
			case c == '/' && i+1 < len(code) && code[i+1] == '*':
				inBlock = true
				out = append(out, ' ', ' ')
				i++
			case c == '#':
				inLine = true
				out = append(out, ' ')
			default:
				out = append(out, c)
			}
		}
	}
	return string(out)
}

// pythonHeaders are the compound-statement keywords whose header lines must
// end with a colon.
var pythonHeaders = map[string]struct{}{
	"def": {}, "if": {}, "elif": {}, "else": {}, "for": {}, "while": {},
	"try": {}, "except": {}, "finally": {}, "with": {}, "class": {},
}

// addMissingColons appends the colon python compound-statement headers
// require. Lines that already carry a colon anywhere in their code part,
// spill into the next line, or are comments stay untouched.
func addMissingColons(code string) string {
	rawLines := strings.Split(code, "\n")
	stripLines := strings.Split(stripStringsAndComments(code), "\n")
	for i := range rawLines {
		codePart := strings.TrimRight(stripLines[i], " \t")
		body := strings.TrimSpace(codePart)
		if body == "" {
			continue
		}
		if _, ok := pythonHeaders[firstWord(body)]; !ok {
			continue
		}
		if strings.Contains(body, ":") || strings.HasSuffix(body, "\\") {
			continue
		}
		if strings.ContainsAny(body[len(body)-1:], "{[(,") {
			continue
		}
		if strings.Count(body, "(") != strings.Count(body, ")") {
			continue
		}
		at := len(codePart)
		rawLines[i] = rawLines[i][:at] + ":" + rawLines[i][at:]
	}
	return strings.Join(rawLines, "\n")
}

// normalizeIndentation rewrites leading tabs as spaces, but only when the
// snippet mixes both styles; consistent indentation is left alone. The space
// unit is the gcd of the existing space indents, 4 when there are none.
func normalizeIndentation(code string) string {
	lines := strings.Split(code, "\n")
	hasTab, hasSpace := false, false
	unit := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		switch line[0] {
		case '\t':
			hasTab = true
		case ' ':
			hasSpace = true
			n := 0
			for n < len(line) && line[n] == ' ' {
				n++
			}
			unit = gcd(unit, n)
		}
	}
	if !hasTab || !hasSpace {
		return code
	}
	if unit == 0 {
		unit = 4
	}

	for i, line := range lines {
		j := 0
		var b strings.Builder
		for j < len(line) {
			if line[j] == ' ' {
				b.WriteByte(' ')
			} else if line[j] == '\t' {
				b.WriteString(strings.Repeat(" ", unit))
			} else {
				break
			}
			j++
		}
		lines[i] = b.String() + line[j:]
	}
	return strings.Join(lines, "\n")
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// balanceBraces appends missing closing braces at the end of the snippet, or
// drops surplus closers from trailing closer-only lines. Counts are taken on
// the stripped text so braces inside strings and comments do not skew them.
func balanceBraces(code string) string {
	stripped := stripStringsAndComments(code)
	open := strings.Count(stripped, "{")
	closeN := strings.Count(stripped, "}")
	switch {
	case open > closeN:
		missing := open - closeN
		trailingNL := strings.HasSuffix(code, "\n")
		s := strings.TrimRight(code, "\n")
		for i := 0; i < missing; i++ {
			s += "\n}"
		}
		if trailingNL {
			s += "\n"
		}
		return s
	case closeN > open:
		surplus := closeN - open
		lines := strings.Split(code, "\n")
		stripLines := strings.Split(stripped, "\n")
		for i := len(lines) - 1; i >= 0 && surplus > 0; i-- {
			if strings.TrimSpace(lines[i]) == "" {
				continue
			}
			st := strings.TrimSpace(stripLines[i])
			if st == "" || strings.Trim(st, "} \t") != "" {
				break
			}
			n := strings.Count(st, "}")
			if n <= surplus {
				surplus -= n
				if i == len(lines)-1 || (i == len(lines)-2 && lines[len(lines)-1] == "") {
					lines = append(lines[:i], lines[i+1:]...)
				} else {
					lines[i] = ""
				}
			} else {
				ws := lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
				lines[i] = ws + strings.Repeat("}", n-surplus)
				surplus = 0
			}
		}
		return strings.Join(lines, "\n")
	}
	return code
}

// semicolonControl are keywords whose lines never take an appended semicolon.
var semicolonControl = map[string]struct{}{
	"if": {}, "else": {}, "for": {}, "while": {}, "switch": {}, "case": {},
	"default": {}, "do": {}, "try": {}, "catch": {}, "finally": {},
	"function": {}, "class": {}, "struct": {}, "enum": {}, "interface": {},
	"namespace": {}, "public": {}, "private": {}, "protected": {},
}

// addMissingSemicolons appends semicolons to statement lines that lack them.
// Headers, labels, comments, continuations, and preprocessor lines are left
// alone. Decisions run on the stripped text, edits on the raw text, so
// trailing comments survive in place.
func addMissingSemicolons(code string) string {
	rawLines := strings.Split(code, "\n")
	stripLines := strings.Split(stripStringsAndComments(code), "\n")

	nextStarts := func(from int) string {
		for i := from; i < len(stripLines); i++ {
			if t := strings.TrimSpace(stripLines[i]); t != "" {
				return t
			}
		}
		return ""
	}

	for i := range rawLines {
		codePart := strings.TrimRight(stripLines[i], " \t")
		body := strings.TrimSpace(codePart)
		if body == "" {
			continue
		}
		if strings.HasPrefix(body, "#") || strings.HasPrefix(body, "@") {
			continue
		}
		last := body[len(body)-1]
		if strings.ContainsRune(";{}:,\\=+-*/%<>&|!([", rune(last)) {
			continue
		}
		if _, ctrl := semicolonControl[firstWord(body)]; ctrl {
			continue
		}
		if fields := strings.Fields(body); len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
			continue
		}
		if strings.Count(body, "(") != strings.Count(body, ")") ||
			strings.Count(body, "[") != strings.Count(body, "]") ||
			strings.Count(body, "{") != strings.Count(body, "}") {
			continue
		}
		if strings.HasPrefix(nextStarts(i+1), "{") {
			continue
		}
		at := len(codePart)
		rawLines[i] = rawLines[i][:at] + ";" + rawLines[i][at:]
	}
	return strings.Join(rawLines, "\n")
}

// validateStructure re-checks the snippet after repair and logs anything the
// conservative edits could not fix.
func validateStructure(code, lang string) {
	stripped := stripStringsAndComments(code)
	if lang == langPython {
		for _, line := range strings.Split(stripped, "\n") {
			body := strings.TrimSpace(line)
			if body == "" {
				continue
			}
			if _, ok := pythonHeaders[firstWord(body)]; !ok {
				continue
			}
			if !strings.Contains(body, ":") && !strings.HasSuffix(body, "\\") &&
				strings.Count(body, "(") == strings.Count(body, ")") {
				slog.Warn("code repair: header still missing colon", "language", lang, "line", body)
			}
		}
		return
	}
	if strings.Count(stripped, "{") != strings.Count(stripped, "}") {
		slog.Warn("code repair: braces still unbalanced", "language", lang)
	}
}
