// Package command normalizes raw command text, classifies its rough shape,
// and extracts structural targets for accessibility lookups.
package command

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joescharf/deskpilot/internal/models"
)

// MaxLength is the longest command accepted, in runes.
const MaxLength = 1000

var (
	ErrEmptyCommand   = errors.New("command is empty")
	ErrCommandTooLong = errors.New("command exceeds maximum length")
)

// Type is the heuristic shape of a command.
type Type string

const (
	TypeClick       Type = "click"
	TypeDoubleClick Type = "double_click"
	TypeType        Type = "type"
	TypeScroll      Type = "scroll"
	TypeQuestion    Type = "question"
	TypeGeneric     Type = "generic"
)

// IsGUI reports whether the type maps to a primitive GUI action.
func (t Type) IsGUI() bool {
	switch t {
	case TypeClick, TypeDoubleClick, TypeType, TypeScroll:
		return true
	}
	return false
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	trailingRe   = regexp.MustCompile(`[.!;,]+$`)
)

// Normalize trims, collapses internal whitespace and drops trailing
// sentence punctuation. Question marks are kept.
func Normalize(input string) string {
	text := strings.TrimSpace(input)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = trailingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Validate normalizes the command and reports whether it can be executed.
func Validate(input string) (*models.ValidationResult, error) {
	normalized := Normalize(input)
	res := &models.ValidationResult{Normalized: normalized}

	if normalized == "" {
		res.Error = ErrEmptyCommand.Error()
		return res, ErrEmptyCommand
	}
	if utf8.RuneCountInString(normalized) > MaxLength {
		res.Error = ErrCommandTooLong.Error()
		return res, ErrCommandTooLong
	}

	res.Valid = true
	res.CommandType = string(DetectType(normalized))
	return res, nil
}

var questionWords = map[string]bool{
	"what": true, "where": true, "who": true, "why": true, "how": true,
	"when": true, "which": true, "is": true, "are": true, "can": true,
	"does": true, "do": true,
}

// DetectType guesses the command shape from its leading verb.
func DetectType(normalized string) Type {
	tokens := strings.Fields(strings.ToLower(normalized))
	if len(tokens) == 0 {
		return TypeGeneric
	}

	first := cleanToken(tokens[0])
	if first == "please" && len(tokens) > 1 {
		tokens = tokens[1:]
		first = cleanToken(tokens[0])
	}
	if first == "double" && len(tokens) > 1 && cleanToken(tokens[1]) == "click" {
		return TypeDoubleClick
	}
	if action, ok := actionVerbs[first]; ok {
		return Type(action)
	}
	if questionWords[first] || strings.HasSuffix(normalized, "?") {
		return TypeQuestion
	}
	return TypeGeneric
}

func cleanToken(tok string) string {
	return strings.Trim(tok, `.,!?;:"'()`)
}
