package recording

import (
	"encoding/json"
	"fmt"
	"os"
)

// ActionKind identifies the interaction type of a captured action.
type ActionKind string

const (
	KindClick      ActionKind = "click"
	KindInput      ActionKind = "input"
	KindSelect     ActionKind = "select"
	KindHover      ActionKind = "hover"
	KindScroll     ActionKind = "scroll"
	KindNavigation ActionKind = "navigation"
	KindSubmit     ActionKind = "submit"
	KindModal      ActionKind = "modal"
)

// StrategyKind names one candidate lookup method inside a Strategy.
type StrategyKind string

const (
	ByID       StrategyKind = "id"
	ByTestID   StrategyKind = "testId"
	ByLabel    StrategyKind = "label"
	ByName     StrategyKind = "name"
	ByCSS      StrategyKind = "css"
	ByXPath    StrategyKind = "xpath"
	ByPosition StrategyKind = "position"
	ByText     StrategyKind = "text"
)

// RelativePosition locates an element as the nth child of a parent query.
type RelativePosition struct {
	Parent string `json:"parent"`
	Index  int    `json:"index"`
}

// Strategy is the prioritized set of lookup methods captured for one element.
// Only the populated candidates are tried, in Priority order.
type Strategy struct {
	ID            string            `json:"id,omitempty"`
	EquivalentIDs []string          `json:"equivalentIds,omitempty"` // ids recorded as interchangeable with ID
	TestID        string            `json:"testId,omitempty"`
	Label         string            `json:"label,omitempty"`
	Name          string            `json:"name,omitempty"`
	CSS           string            `json:"css,omitempty"`
	XPath         string            `json:"xpath,omitempty"`
	Position      *RelativePosition `json:"position,omitempty"`
	Text          string            `json:"text,omitempty"`
	Priority      []StrategyKind    `json:"priority,omitempty"`
}

// Has reports whether the given candidate kind carries a usable value.
func (s *Strategy) Has(kind StrategyKind) bool {
	if s == nil {
		return false
	}
	switch kind {
	case ByID:
		return s.ID != ""
	case ByTestID:
		return s.TestID != ""
	case ByLabel:
		return s.Label != ""
	case ByName:
		return s.Name != ""
	case ByCSS:
		return s.CSS != ""
	case ByXPath:
		return s.XPath != ""
	case ByPosition:
		return s.Position != nil && s.Position.Parent != ""
	case ByText:
		return s.Text != ""
	}
	return false
}

// Key returns a stable identity string for duplicate detection across actions.
func (s *Strategy) Key() string {
	if s == nil {
		return ""
	}
	switch {
	case s.ID != "":
		return "id:" + s.ID
	case s.TestID != "":
		return "testId:" + s.TestID
	case s.Name != "":
		return "name:" + s.Name
	case s.CSS != "":
		return "css:" + s.CSS
	case s.XPath != "":
		return "xpath:" + s.XPath
	case s.Label != "":
		return "label:" + s.Label
	case s.Text != "":
		return "text:" + s.Text
	case s.Position != nil:
		return fmt.Sprintf("pos:%s>%d", s.Position.Parent, s.Position.Index)
	}
	return ""
}

// ActionContext carries the capture-time intent metadata used for skipping
// and success-flow detection.
type ActionContext struct {
	NavigationIntent  string   `json:"navigationIntent,omitempty"`
	IsTerminal        bool     `json:"isTerminalAction,omitempty"`
	DependsOn         []string `json:"dependentActions,omitempty"` // ids of terminal actions this one depends on
	Group             string   `json:"actionGroup,omitempty"`
	SuccessURLPattern string   `json:"expectedUrlChange,omitempty"` // regexp matched against the post-action URL
}

// Point is a click offset relative to the element's top-left corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ClickParams struct {
	Button     string `json:"button,omitempty"` // left, right, middle
	ClickCount int    `json:"clickCount,omitempty"`
	Offset     *Point `json:"offset,omitempty"`
}

// InputCategory distinguishes the three input handling branches.
type InputCategory string

const (
	InputText     InputCategory = "text"
	InputCheckbox InputCategory = "checkbox"
	InputFile     InputCategory = "file"
)

type InputParams struct {
	Value         string        `json:"value"`
	Category      InputCategory `json:"category,omitempty"`
	TypingDelayMs int           `json:"typingDelayMs,omitempty"` // per-keystroke delay; 0 means instantaneous fill
}

type SelectParams struct {
	Value string `json:"value,omitempty"`
	Label string `json:"label,omitempty"`
	Index *int   `json:"index,omitempty"`
}

type HoverParams struct {
	DurationMs int `json:"durationMs,omitempty"`
}

type ScrollParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// Target is set for inner scrollable elements; nil means window scroll.
	Target *Strategy `json:"target,omitempty"`
}

type NavigationParams struct {
	URL string `json:"url"`
	// ViaSubmit marks navigations the capture attributed to a form submit,
	// meaning the browser most likely already performed them.
	ViaSubmit bool `json:"viaSubmit,omitempty"`
}

// ModalPhase is the lifecycle moment a modal action records.
type ModalPhase string

const (
	ModalOpened       ModalPhase = "opened"
	ModalClosed       ModalPhase = "closed"
	ModalStateChanged ModalPhase = "state-changed"
)

type ModalParams struct {
	ModalID string     `json:"modalId"`
	Phase   ModalPhase `json:"phase"`
}

// Action is one captured interaction step. Kind selects which params field
// is populated; dispatch on Kind must be exhaustive.
type Action struct {
	ID             string      `json:"id"`
	Timestamp      int64       `json:"timestamp"` // ms; relative to recording start after preprocessing
	URL            string      `json:"url"`       // page URL at capture time
	Kind           ActionKind  `json:"kind"`
	Strategy       *Strategy   `json:"strategy,omitempty"`
	Optional       bool        `json:"isOptional,omitempty"`
	SkipIfNotFound bool        `json:"skipIfNotFound,omitempty"`
	ModalID        string      `json:"modalId,omitempty"` // enclosing modal, empty when none

	Context *ActionContext `json:"context,omitempty"`

	Click      *ClickParams      `json:"click,omitempty"`
	Input      *InputParams      `json:"input,omitempty"`
	Select     *SelectParams     `json:"select,omitempty"`
	Hover      *HoverParams      `json:"hover,omitempty"`
	Scroll     *ScrollParams     `json:"scroll,omitempty"`
	Navigation *NavigationParams `json:"navigation,omitempty"`
	Modal      *ModalParams      `json:"modal,omitempty"`
}

// Viewport is the captured page size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Recording is an ordered capture of browser interactions plus the session
// metadata needed to reproduce them. Treated as immutable once loaded; the
// preprocessor returns a derived copy.
type Recording struct {
	Name              string    `json:"name"`
	StartURL          string    `json:"startUrl"`
	Viewport          Viewport  `json:"viewport"`
	Window            *Viewport `json:"window,omitempty"` // outer window size for headed runs
	DeviceScaleFactor float64   `json:"deviceScaleFactor,omitempty"`
	UserAgent         string    `json:"userAgent,omitempty"`
	Actions           []Action  `json:"actions"`
}

// Load reads a recording from a JSON file.
func Load(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse recording: %w", err)
	}
	if rec.StartURL == "" {
		return nil, fmt.Errorf("recording %q has no start URL", rec.Name)
	}
	return &rec, nil
}

// Clone returns a deep-enough copy for preprocessing: the action slice is
// copied so reordering and filtering never touch the original.
func (r *Recording) Clone() *Recording {
	out := *r
	out.Actions = make([]Action, len(r.Actions))
	copy(out.Actions, r.Actions)
	return &out
}
