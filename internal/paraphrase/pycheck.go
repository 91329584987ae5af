package paraphrase

import "strings"

// pythonKeywords and pythonBuiltins are excluded when scanning identifiers:
// neither can be a variable a snippet forgot to assign.
var pythonKeywords = map[string]struct{}{
	"and": {}, "as": {}, "assert": {}, "async": {}, "await": {}, "break": {},
	"class": {}, "continue": {}, "def": {}, "del": {}, "elif": {}, "else": {},
	"except": {}, "finally": {}, "for": {}, "from": {}, "global": {}, "if": {},
	"import": {}, "in": {}, "is": {}, "lambda": {}, "nonlocal": {}, "not": {},
	"or": {}, "pass": {}, "raise": {}, "return": {}, "try": {}, "while": {},
	"with": {}, "yield": {}, "None": {}, "True": {}, "False": {},
}

var pythonBuiltins = map[string]struct{}{
	"print": {}, "len": {}, "range": {}, "int": {}, "str": {}, "float": {},
	"bool": {}, "list": {}, "dict": {}, "set": {}, "tuple": {}, "type": {},
	"isinstance": {}, "enumerate": {}, "zip": {}, "map": {}, "filter": {},
	"sorted": {}, "reversed": {}, "sum": {}, "min": {}, "max": {}, "abs": {},
	"round": {}, "any": {}, "all": {}, "open": {}, "input": {}, "super": {},
	"object": {}, "repr": {}, "hash": {}, "iter": {}, "next": {}, "getattr": {},
	"setattr": {}, "hasattr": {}, "callable": {}, "staticmethod": {},
	"classmethod": {}, "property": {}, "bytes": {}, "chr": {}, "ord": {},
	"Exception": {}, "ValueError": {}, "TypeError": {}, "KeyError": {},
	"IndexError": {}, "AttributeError": {}, "RuntimeError": {}, "StopIteration": {},
	"self": {},
}

// undefinedBeforeAssignment reports variables a python snippet reads before
// the line that first assigns them. Only names the snippet itself assigns
// somewhere count, so references to outside context never trigger. The walk
// is line-by-line and ignores def/class forward references, which are legal.
func undefinedBeforeAssignment(code string) []string {
	lines := strings.Split(stripStringsAndComments(code), "\n")

	firstAssign := make(map[string]struct{})
	for _, line := range lines {
		for _, n := range assignedNames(line) {
			firstAssign[n] = struct{}{}
		}
	}
	if len(firstAssign) == 0 {
		return nil
	}

	defined := make(map[string]struct{})
	flagged := make(map[string]struct{})
	var out []string
	for _, line := range lines {
		for _, n := range usedNames(line) {
			if _, ok := defined[n]; ok {
				continue
			}
			if _, ok := firstAssign[n]; !ok {
				continue
			}
			if _, ok := flagged[n]; !ok {
				flagged[n] = struct{}{}
				out = append(out, n)
			}
		}
		for _, n := range assignedNames(line) {
			defined[n] = struct{}{}
		}
		for _, n := range defNames(line) {
			defined[n] = struct{}{}
		}
	}
	return out
}

// assignedNames returns the variables a stripped line binds to a value.
func assignedNames(line string) []string {
	body := strings.TrimSpace(line)
	switch {
	case body == "":
		return nil
	case strings.HasPrefix(body, "def ") || strings.HasPrefix(body, "class "):
		return nil
	case strings.HasPrefix(body, "for "):
		rest := body[len("for "):]
		if in := strings.Index(rest, " in "); in >= 0 {
			return identifiers(rest[:in])
		}
		return nil
	case strings.HasPrefix(body, "import "):
		return importedNames(body[len("import "):], false)
	case strings.HasPrefix(body, "from "):
		if idx := strings.Index(body, " import "); idx >= 0 {
			return importedNames(body[idx+len(" import "):], true)
		}
		return nil
	case strings.HasPrefix(body, "global "):
		return identifiers(body[len("global "):])
	case strings.HasPrefix(body, "nonlocal "):
		return identifiers(body[len("nonlocal "):])
	case strings.HasPrefix(body, "with ") || strings.HasPrefix(body, "except "):
		var names []string
		rest := body
		for {
			idx := strings.Index(rest, " as ")
			if idx < 0 {
				return names
			}
			rest = rest[idx+len(" as "):]
			if ids := identifiers(rest); len(ids) > 0 {
				names = append(names, ids[0])
			}
		}
	}

	idx := assignmentIndex(body)
	if idx < 0 {
		return nil
	}
	var names []string
	for _, target := range strings.Split(body[:idx], ",") {
		t := strings.Trim(target, "()* \t")
		if t != "" && isIdentifier(t) {
			names = append(names, t)
		}
	}
	return names
}

// importedNames extracts the names an import clause binds: the alias when
// "as" is present, otherwise the top-level module or imported symbol.
func importedNames(clause string, symbols bool) []string {
	var names []string
	for _, part := range strings.Split(clause, ",") {
		p := strings.TrimSpace(part)
		if p == "" || p == "*" {
			continue
		}
		if idx := strings.Index(p, " as "); idx >= 0 {
			p = strings.TrimSpace(p[idx+len(" as "):])
		} else if !symbols {
			if dot := strings.IndexByte(p, '.'); dot >= 0 {
				p = p[:dot]
			}
		}
		if isIdentifier(p) {
			names = append(names, p)
		}
	}
	return names
}

// defNames returns names a def or class statement introduces, parameters
// included. They suppress use-before-assignment flags but are not treated as
// value assignments, so calling a function defined further down stays legal.
func defNames(line string) []string {
	body := strings.TrimSpace(line)
	var rest string
	switch {
	case strings.HasPrefix(body, "def "):
		rest = body[len("def "):]
	case strings.HasPrefix(body, "class "):
		rest = body[len("class "):]
	default:
		return nil
	}
	name := firstWord(rest)
	if name == "" {
		return nil
	}
	names := []string{name}
	if open := strings.IndexByte(rest, '('); open >= 0 {
		inner := rest[open+1:]
		if close := strings.LastIndexByte(inner, ')'); close >= 0 {
			inner = inner[:close]
		}
		for _, param := range strings.Split(inner, ",") {
			p := param
			if eq := strings.IndexByte(p, '='); eq >= 0 {
				p = p[:eq]
			}
			if colon := strings.IndexByte(p, ':'); colon >= 0 {
				p = p[:colon]
			}
			p = strings.Trim(p, "* \t")
			if isIdentifier(p) {
				names = append(names, p)
			}
		}
	}
	return names
}

// usedNames returns the variables a stripped line reads.
func usedNames(line string) []string {
	body := strings.TrimSpace(line)
	switch {
	case body == "":
		return nil
	case strings.HasPrefix(body, "def ") || strings.HasPrefix(body, "class "),
		strings.HasPrefix(body, "import ") || strings.HasPrefix(body, "from "),
		strings.HasPrefix(body, "global ") || strings.HasPrefix(body, "nonlocal "):
		return nil
	case strings.HasPrefix(body, "for "):
		if in := strings.Index(body, " in "); in >= 0 {
			return identifiers(body[in+len(" in "):])
		}
		return nil
	}
	idx := assignmentIndex(body)
	if idx < 0 {
		return identifiers(body)
	}
	names := identifiers(body[idx+1:])
	// Attribute and subscript targets read their base object.
	if lhs := body[:idx]; strings.ContainsAny(lhs, ".[") {
		names = append(names, identifiers(lhs)...)
	}
	return names
}

// assignmentIndex returns the position of the top-level assignment operator
// in a stripped line, or -1. Comparison, augmented, walrus, and keyword-arg
// equals signs do not count.
func assignmentIndex(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.IndexByte("=!<>+-*/%&|^:@", s[i-1]) >= 0 {
				continue
			}
			return i
		}
	}
	return -1
}

// identifiers scans ascii identifiers out of a stripped expression, skipping
// keywords, builtins, and attribute names after a dot.
func identifiers(s string) []string {
	var out []string
	for i := 0; i < len(s); {
		c := s[i]
		if !isIdentByte(c, true) {
			i++
			continue
		}
		start := i
		for i < len(s) && isIdentByte(s[i], false) {
			i++
		}
		name := s[start:i]
		if start > 0 && s[start-1] == '.' {
			continue
		}
		if _, ok := pythonKeywords[name]; ok {
			continue
		}
		if _, ok := pythonBuiltins[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i], i == 0) {
			return false
		}
	}
	if _, ok := pythonKeywords[s]; ok {
		return false
	}
	return true
}

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && c >= '0' && c <= '9'
}
