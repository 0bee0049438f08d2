// Package reply extracts reply text from the JSON envelopes returned by
// reasoning backends.
package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoContent is returned when no known reply shape matches.
var ErrNoContent = errors.New("no recognizable content in reply")

// Shape identifies which envelope a reply was decoded from.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeMessage is {"message": {"content": "..."}}.
	ShapeMessage
	// ShapeChoices is {"choices": [{"message": {"content": "..."}}]}.
	ShapeChoices
	// ShapeFlat is {"response": "..."} or {"content": "..."}.
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeMessage:
		return "message"
	case ShapeChoices:
		return "choices"
	case ShapeFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// Reply is the decoded text and the envelope it came from.
type Reply struct {
	Shape Shape
	Text  string
}

type messageEnvelope struct {
	Message *struct {
		Content *string `json:"content"`
	} `json:"message"`
}

type choicesEnvelope struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type flatEnvelope struct {
	Response *string `json:"response"`
	Content  *string `json:"content"`
}

// Parse tries each known envelope in order: message, choices, flat.
func Parse(raw []byte) (Reply, error) {
	if len(raw) == 0 {
		return Reply{}, ErrNoContent
	}

	var m messageEnvelope
	if err := json.Unmarshal(raw, &m); err == nil && m.Message != nil && m.Message.Content != nil {
		return Reply{Shape: ShapeMessage, Text: *m.Message.Content}, nil
	}

	var c choicesEnvelope
	if err := json.Unmarshal(raw, &c); err == nil && len(c.Choices) > 0 &&
		c.Choices[0].Message != nil && c.Choices[0].Message.Content != nil {
		return Reply{Shape: ShapeChoices, Text: *c.Choices[0].Message.Content}, nil
	}

	var f flatEnvelope
	if err := json.Unmarshal(raw, &f); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	if f.Response != nil {
		return Reply{Shape: ShapeFlat, Text: *f.Response}, nil
	}
	if f.Content != nil {
		return Reply{Shape: ShapeFlat, Text: *f.Content}, nil
	}

	return Reply{}, ErrNoContent
}

// Text returns the reply text, or an error when no shape matches or the text is blank.
func Text(raw []byte) (string, error) {
	r, err := Parse(raw)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// Flat wraps text in the flat envelope.
func Flat(text string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"content": text})
	return data
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// FenceLanguage returns the language tag of a leading markdown fence.
func FenceLanguage(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return ""
	}
	first := strings.SplitN(text, "\n", 2)[0]
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(first, "```")))
}
