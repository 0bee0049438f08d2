package llm

import (
	"encoding/json"
	"strings"

	"github.com/joescharf/deskpilot/internal/desktop"
)

const intentSystemPrompt = `You classify commands given to a desktop assistant. Return ONLY a JSON object with these fields:
- "intent": one of "gui_interaction", "conversational_chat", "deferred_action", "question_answering"
- "confidence": a number between 0 and 1
- "parameters": an object with any extracted details

Rules:
- "gui_interaction": the user wants something clicked, typed, scrolled or opened on screen now
- "deferred_action": the user wants content written or generated (code, an email, text) to be placed wherever they click next; include "content_type" ("code" or "text") and "target" (what to generate) in parameters, plus "language" for code
- "question_answering": the user asks about what is visible on the screen
- "conversational_chat": small talk or general questions unrelated to the screen
- Return valid JSON only, no markdown fencing or explanation`

const contentSystemPrompt = `You write content that will be typed directly into another application at the user's cursor.
Rules:
- Output only the content itself, no explanation and no markdown fencing
- Code must be complete, properly indented, with one statement per line
- Prose must be ready to paste as-is`

const chatSystemPrompt = `You are a friendly desktop assistant having a spoken conversation. Keep answers short (one to three sentences) because they are read aloud.`

const planSystemPrompt = `You control a desktop computer through primitive actions. Given a command and a description of the screen, return ONLY a JSON object:
{"plan": [{"action": "click" | "double_click" | "type" | "scroll", "coordinates": {"x": int, "y": int}, "text": string, "direction": "up" | "down", "amount": int}], "explanation": string}
Rules:
- Use coordinates of elements from the screen description
- Omit fields that do not apply to an action
- Return valid JSON only, no markdown fencing or explanation`

const screenSystemPrompt = `You describe screenshots for a desktop automation system. Return ONLY a JSON object:
{"description": string, "elements": [{"role": string, "label": string, "app_name": string, "center": {"x": int, "y": int}}]}
List every interactive element you can identify with its center in screenshot pixel coordinates.
Return valid JSON only, no markdown fencing or explanation`

// buildPlanPrompt constructs the user prompt for action planning.
func buildPlanPrompt(command string, screen *desktop.ScreenDescription) string {
	var sb strings.Builder
	sb.WriteString("Command: ")
	sb.WriteString(command)
	sb.WriteString("\n\n")
	if screen != nil {
		sb.WriteString("Screen description:\n")
		sb.WriteString(screen.Description)
		sb.WriteString("\n")
		if len(screen.Elements) > 0 {
			data, _ := json.Marshal(screen.Elements)
			sb.WriteString("\nElements:\n")
			sb.Write(data)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// buildScreenPrompt constructs the instruction accompanying a screenshot.
func buildScreenPrompt(analysisType string) string {
	switch analysisType {
	case "question":
		return "Describe everything visible on this screen in detail so that questions about it can be answered."
	default:
		return "Describe this screen and list its interactive elements."
	}
}
