package command

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Target is the structural description of a GUI element a command refers to.
type Target struct {
	Role       string  `json:"role"`
	Label      string  `json:"label"`
	Action     string  `json:"action"`
	AppName    string  `json:"app_name,omitempty"`
	Text       string  `json:"text,omitempty"`
	Direction  string  `json:"direction,omitempty"`
	Amount     int     `json:"amount,omitempty"`
	Focused    bool    `json:"focused,omitempty"`
	Confidence float64 `json:"confidence"`
}

// actionVerbs maps leading verbs to primitive actions.
var actionVerbs = map[string]string{
	"click":        "click",
	"press":        "click",
	"tap":          "click",
	"select":       "click",
	"open":         "double_click",
	"double-click": "double_click",
	"doubleclick":  "double_click",
	"type":         "type",
	"enter":        "type",
	"input":        "type",
	"write":        "type",
	"scroll":       "scroll",
	"page":         "scroll",
}

// fillers are dropped wherever they appear in the label.
var fillers = map[string]bool{
	"the": true, "on": true, "in": true, "a": true, "an": true,
	"at": true, "to": true, "into": true, "onto": true, "of": true,
	"please": true,
}

var stopWords = map[string]bool{
	"and": true, "or": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "it": true, "my": true, "me": true,
	"then": true, "now": true,
}

var roleWords = map[string]string{
	"button":   "button",
	"link":     "link",
	"field":    "text field",
	"textbox":  "text field",
	"input":    "text field",
	"menu":     "menu",
	"tab":      "tab",
	"checkbox": "checkbox",
	"icon":     "icon",
}

var scrollDirections = map[string]bool{"up": true, "down": true, "left": true, "right": true}

// ExtractLabel returns only the label portion of ExtractTarget.
func ExtractLabel(cmd string) string {
	return ExtractTarget(cmd).Label
}

// ExtractTarget strips leading action verbs and filler words from a command
// and treats what remains as the element label. When stripping leaves an
// empty or single-character label, the original command is used instead.
func ExtractTarget(cmd string) Target {
	original := Normalize(cmd)
	tokens := strings.Fields(original)
	t := Target{Action: "click"}

	verbs := 0
	for len(tokens) > 0 {
		lower := strings.ToLower(cleanToken(tokens[0]))
		if lower == "please" {
			tokens = tokens[1:]
			continue
		}
		if lower == "double" && len(tokens) > 1 && strings.ToLower(cleanToken(tokens[1])) == "click" {
			if verbs == 0 {
				t.Action = "double_click"
			}
			tokens = tokens[2:]
			verbs++
			continue
		}
		action, ok := actionVerbs[lower]
		if !ok {
			break
		}
		if verbs == 0 {
			t.Action = action
		}
		tokens = tokens[1:]
		verbs++
	}

	switch t.Action {
	case "type":
		tokens = splitTypeTarget(&t, tokens)
	case "scroll":
		tokens = splitScroll(&t, tokens)
	}

	kept := make([]string, 0, len(tokens))
	removed := 0
	for _, tok := range tokens {
		if fillers[strings.ToLower(cleanToken(tok))] {
			removed++
			continue
		}
		kept = append(kept, tok)
	}

	label := strings.Join(kept, " ")
	if utf8.RuneCountInString(strings.TrimSpace(label)) <= 1 {
		label = original
	}
	t.Label = label

	if len(kept) > 0 {
		if role, ok := roleWords[strings.ToLower(cleanToken(kept[len(kept)-1]))]; ok {
			t.Role = role
		}
	}

	t.Confidence = extractionConfidence(original, label, verbs, removed, kept)
	return t
}

// splitTypeTarget separates "type X into Y" into text X and target tokens Y.
// Without "into" the whole remainder is the text and the focused element is used.
func splitTypeTarget(t *Target, tokens []string) []string {
	for i, tok := range tokens {
		if strings.EqualFold(cleanToken(tok), "into") {
			t.Text = unquote(strings.Join(tokens[:i], " "))
			return tokens[i+1:]
		}
	}
	t.Text = unquote(strings.Join(tokens, " "))
	t.Focused = true
	return nil
}

// splitScroll pulls a direction and an optional amount out of a scroll command.
func splitScroll(t *Target, tokens []string) []string {
	t.Direction = "down"
	t.Amount = 3
	rest := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		lower := strings.ToLower(cleanToken(tok))
		if scrollDirections[lower] {
			t.Direction = lower
			continue
		}
		if n, err := strconv.Atoi(lower); err == nil && n > 0 {
			t.Amount = n
			continue
		}
		rest = append(rest, tok)
	}
	if len(rest) == 0 {
		t.Focused = true
	}
	return rest
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func extractionConfidence(original, label string, verbs, removed int, kept []string) float64 {
	score := 0.5
	score += 0.1 * float64(verbs)
	score += 0.05 * float64(removed)

	if n := utf8.RuneCountInString(original); n > 0 {
		if float64(utf8.RuneCountInString(label)) < 0.3*float64(n) {
			score -= 0.2
		}
	}

	for _, tok := range kept {
		lower := strings.ToLower(cleanToken(tok))
		if utf8.RuneCountInString(lower) >= 3 && !stopWords[lower] && !fillers[lower] {
			score += 0.05
		}
	}

	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
