package orchestrator

import (
	"strings"
	"unicode"
)

const indentUnit = "    "

var pythonLangs = map[string]bool{"python": true, "python3": true, "py": true}

var braceLangs = map[string]bool{
	"javascript": true, "js": true, "typescript": true, "ts": true,
	"java": true, "c": true, "cpp": true, "c++": true, "csharp": true, "cs": true,
	"go": true, "golang": true, "rust": true, "rs": true, "kotlin": true,
	"swift": true, "php": true, "scala": true, "dart": true,
}

var pythonBlockKeywords = map[string]bool{
	"def": true, "class": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "try": true, "except": true, "finally": true,
	"with": true, "async": true,
}

// pythonOpeners maps continuation keywords to the headers they continue.
var pythonOpeners = map[string]map[string]bool{
	"elif":    {"if": true, "elif": true},
	"else":    {"if": true, "elif": true, "for": true, "while": true, "try": true, "except": true},
	"except":  {"try": true, "except": true},
	"finally": {"try": true, "except": true, "else": true},
}

// formatCode splits single-line code into logical lines. Multi-line input
// and languages it does not know are returned unchanged.
func formatCode(code, language string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.Contains(code, "\n") {
		return code
	}
	lang := strings.ToLower(strings.TrimSpace(language))
	switch {
	case pythonLangs[lang]:
		return formatPython(code)
	case braceLangs[lang]:
		return formatBraces(code)
	case lang != "":
		return code
	case looksLikePython(code):
		return formatPython(code)
	case strings.ContainsAny(code, "{}"):
		return formatBraces(code)
	}
	return code
}

func looksLikePython(code string) bool {
	if strings.ContainsAny(code, "{}") {
		return false
	}
	switch firstWord(code) {
	case "def", "class", "import", "from", "for", "while", "if", "with", "try":
		return true
	}
	return strings.Contains(code, "):")
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

type pyPiece struct {
	text           string
	header         bool
	afterSemicolon bool
}

// pythonPieces splits a one-line program at top-level semicolons and after
// the colon of each block header.
func pythonPieces(code string) []pyPiece {
	var (
		pieces  []pyPiece
		cur     strings.Builder
		depth   int
		quote   rune
		escaped bool
		afterSC bool
	)
	flush := func(header bool) {
		t := strings.TrimSpace(cur.String())
		cur.Reset()
		if t == "" {
			return
		}
		pieces = append(pieces, pyPiece{text: t, header: header, afterSemicolon: afterSC})
		afterSC = false
	}

	for _, r := range code {
		if quote != 0 {
			cur.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
			cur.WriteRune(r)
		case '(', '[', '{':
			depth++
			cur.WriteRune(r)
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case ';':
			if depth > 0 {
				cur.WriteRune(r)
				continue
			}
			flush(false)
			afterSC = true
		case ':':
			cur.WriteRune(r)
			if depth == 0 && pythonBlockKeywords[firstWord(cur.String())] {
				flush(true)
			}
		default:
			cur.WriteRune(r)
		}
	}
	flush(false)
	return pieces
}

type pyHeader struct {
	keyword string
	depth   int
}

func formatPython(code string) string {
	var (
		lines []string
		stack []pyHeader
		depth int
		prev  pyPiece
		pDep  int
	)
	for i, p := range pythonPieces(code) {
		kw := firstWord(p.text)
		if openers, ok := pythonOpeners[kw]; ok {
			for j := len(stack) - 1; j >= 0; j-- {
				if openers[stack[j].keyword] {
					depth = stack[j].depth
					stack = stack[:j]
					break
				}
			}
		} else if p.afterSemicolon {
			// A statement after ';' continues the innermost function or
			// class body, unless that body just returned.
			depth = 0
			for j := len(stack) - 1; j >= 0; j-- {
				if stack[j].keyword == "def" || stack[j].keyword == "class" {
					depth = stack[j].depth + 1
					stack = stack[:j+1]
					ended := i > 0 && !prev.header && pDep == depth &&
						(firstWord(prev.text) == "return" || firstWord(prev.text) == "raise")
					if ended {
						depth = stack[j].depth
						stack = stack[:j]
					}
					break
				}
			}
			if depth == 0 {
				stack = stack[:0]
			}
		}

		lines = append(lines, strings.Repeat(indentUnit, depth)+p.text)
		prev, pDep = p, depth
		if p.header {
			stack = append(stack, pyHeader{keyword: kw, depth: depth})
			depth++
		}
	}
	return strings.Join(lines, "\n")
}

// formatBraces breaks brace-language code after ';', '{' and '}', indenting
// by brace depth. Semicolons inside parentheses, as in for clauses, are kept.
func formatBraces(code string) string {
	var (
		lines   []string
		cur     strings.Builder
		depth   int
		paren   int
		quote   rune
		escaped bool
	)
	flush := func() {
		t := strings.TrimSpace(cur.String())
		cur.Reset()
		if t != "" {
			lines = append(lines, strings.Repeat(indentUnit, depth)+t)
		}
	}

	rs := []rune(code)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if quote != 0 {
			cur.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
			cur.WriteRune(r)
		case '(':
			paren++
			cur.WriteRune(r)
		case ')':
			if paren > 0 {
				paren--
			}
			cur.WriteRune(r)
		case ';':
			cur.WriteRune(r)
			if paren == 0 {
				flush()
			}
		case '{':
			cur.WriteRune(r)
			flush()
			depth++
		case '}':
			flush()
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
			if !continuesBlock(rs[i+1:]) {
				flush()
			}
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return strings.Join(lines, "\n")
}

// continuesBlock reports whether the text after a closing brace belongs on
// the same line, as in "} else {" or "});".
func continuesBlock(rest []rune) bool {
	s := strings.TrimLeftFunc(string(rest), unicode.IsSpace)
	if s == "" {
		return false
	}
	switch s[0] {
	case ';', ',', ')':
		return true
	}
	switch firstWord(s) {
	case "else", "catch", "finally", "while":
		return true
	}
	return false
}
