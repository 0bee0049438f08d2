// Package desktop defines the contracts of the collaborators the orchestrator
// drives (accessibility, automation, vision, feedback, mouse listener) and
// provides process-backed implementations of them.
package desktop

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned by collaborators that cannot serve requests.
var ErrUnavailable = errors.New("collaborator unavailable")

// Module names used for health tracking.
const (
	ModuleVision        = "vision"
	ModuleReasoning     = "reasoning"
	ModuleAutomation    = "automation"
	ModuleAccessibility = "accessibility"
	ModuleAudio         = "audio"
	ModuleMouseListener = "mouse_listener"
)

// Modules lists every tracked collaborator module.
var Modules = []string{
	ModuleVision,
	ModuleReasoning,
	ModuleAutomation,
	ModuleAccessibility,
	ModuleAudio,
	ModuleMouseListener,
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Element is a UI element resolved by the accessibility collaborator.
type Element struct {
	Role    string `json:"role"`
	Label   string `json:"label"`
	AppName string `json:"app_name,omitempty"`
	Center  Point  `json:"center"`
}

// ActionKind is a primitive automation action.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionType        ActionKind = "type"
	ActionScroll      ActionKind = "scroll"
)

// Action is a single primitive for the automation collaborator.
type Action struct {
	Kind      ActionKind `json:"action"`
	Point     *Point     `json:"coordinates,omitempty"`
	Text      string     `json:"text,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Amount    int        `json:"amount,omitempty"`
}

// ActionResult reports the outcome of an Action.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ScreenDescription is what the vision collaborator reports about the screen.
type ScreenDescription struct {
	Elements    []Element      `json:"elements,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Sound cues understood by Feedback.Play.
const (
	CueSuccess   = "success"
	CueFailure   = "failure"
	CueListening = "listening"
	CueCancel    = "cancel"
)

// Accessibility resolves UI elements through OS accessibility APIs.
// Implementations own their caching.
type Accessibility interface {
	// Ready reports whether the accessibility backend is initialized.
	Ready() bool
	// FindElement returns the best match, or nil when nothing matches.
	FindElement(ctx context.Context, role, label, appName string) (*Element, error)
}

// Automation executes primitive actions against the OS.
type Automation interface {
	Execute(ctx context.Context, action Action) ActionResult
}

// Vision captures and describes the screen.
type Vision interface {
	DescribeScreen(ctx context.Context, analysisType string) (*ScreenDescription, error)
}

// Feedback speaks text and plays sound cues.
type Feedback interface {
	Speak(ctx context.Context, text string) error
	Play(ctx context.Context, cue string) error
}

// MouseListener reports the next global mouse click.
//
// Start arms the listener and returns a channel that receives at most one
// click; the listener stops itself after delivering it. Stop must not block.
type MouseListener interface {
	Start() (<-chan Point, error)
	Stop()
	IsActive() bool
	LastClick() (Point, bool)
}

// Plan is an ordered list of actions produced by the reasoning collaborator.
type Plan struct {
	Actions     []Action `json:"plan"`
	Explanation string   `json:"explanation,omitempty"`
}
