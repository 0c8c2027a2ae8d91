package router

import (
	"maps"
	"slices"
	"strings"

	"github.com/hazyhaar/tvshell/spatial"
)

// Event is a raw key event as seen by the page.
type Event struct {
	Type   string `json:"type,omitempty"` // keydown, keyup; empty means keydown
	Key    string `json:"key"`
	Code   string `json:"code"`
	Alt    bool   `json:"alt,omitempty"`
	Ctrl   bool   `json:"ctrl,omitempty"`
	Meta   bool   `json:"meta,omitempty"`
	Shift  bool   `json:"shift,omitempty"`
	Repeat bool   `json:"repeat,omitempty"`
}

// KeyDown reports whether e is a key press.
func (e Event) KeyDown() bool {
	return e.Type == "" || strings.EqualFold(e.Type, "keydown")
}

// Stroke is one synthetic key press and release.
type Stroke struct {
	Key   string // DOM key name: ArrowUp, Tab, ...
	Shift bool
}

func (s Stroke) String() string {
	if s.Shift {
		return "Shift+" + s.Key
	}
	return s.Key
}

var (
	StrokeTab      = Stroke{Key: "Tab"}
	StrokeShiftTab = Stroke{Key: "Tab", Shift: true}
)

// Action is what the router does with an event.
type Action int

const (
	ActionPass     Action = iota // leave the event to the page
	ActionNavigate               // spatial navigation with fallback
	ActionReplay                 // native key that bypasses spatial navigation
	ActionPress                  // plain synthetic key (focus cycling)
	ActionQuit                   // guarded quit
)

var actionNames = [...]string{"pass", "navigate", "replay", "press", "quit"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Class is the classification of one event.
type Class struct {
	Action    Action
	Direction spatial.Direction // ActionNavigate
	Stroke    Stroke            // ActionReplay, ActionPress
}

// Keymap holds the classification tables.
type Keymap struct {
	// Quit lists the key values that request a quit.
	Quit []string
	// Replay maps key codes to native strokes replayed past the router.
	Replay map[string]Stroke
	// Press maps key codes to plain strokes.
	Press map[string]Stroke
	// Directions maps key values to navigation directions.
	Directions map[string]spatial.Direction
}

// DefaultKeymap returns the remote-control mapping: arrows navigate, numpad
// and top-row 2/4/6/8 replay native arrows, numpad 1/3 cycle focus.
func DefaultKeymap() Keymap {
	arrows := map[string]Stroke{
		"2": {Key: "ArrowUp"},
		"4": {Key: "ArrowLeft"},
		"6": {Key: "ArrowRight"},
		"8": {Key: "ArrowDown"},
	}
	replay := make(map[string]Stroke, 2*len(arrows))
	for digit, s := range arrows {
		replay["Numpad"+digit] = s
		replay["Digit"+digit] = s
	}
	return Keymap{
		Quit:   []string{"q", "Q"},
		Replay: replay,
		Press: map[string]Stroke{
			"Numpad3": StrokeTab,
			"Numpad1": StrokeShiftTab,
		},
		Directions: map[string]spatial.Direction{
			"ArrowLeft": spatial.Left, "Left": spatial.Left,
			"ArrowRight": spatial.Right, "Right": spatial.Right,
			"ArrowUp": spatial.Up, "Up": spatial.Up,
			"ArrowDown": spatial.Down, "Down": spatial.Down,
		},
	}
}

// IsQuit reports whether key is a quit key.
func (k Keymap) IsQuit(key string) bool {
	for _, q := range k.Quit {
		if key == q {
			return true
		}
	}
	return false
}

// Classify maps an event to an action, ignoring suppression state.
// Numpad codes outside the tables pass.
func (k Keymap) Classify(e Event) Class {
	if !e.KeyDown() || e.Alt || e.Ctrl || e.Meta {
		return Class{Action: ActionPass}
	}
	if k.IsQuit(e.Key) {
		return Class{Action: ActionQuit}
	}
	if s, ok := k.Replay[e.Code]; ok {
		return Class{Action: ActionReplay, Stroke: s}
	}
	if s, ok := k.Press[e.Code]; ok {
		return Class{Action: ActionPress, Stroke: s}
	}
	if strings.HasPrefix(e.Code, "Numpad") {
		return Class{Action: ActionPass}
	}
	if d, ok := k.Directions[e.Key]; ok {
		return Class{Action: ActionNavigate, Direction: d}
	}
	return Class{Action: ActionPass}
}

// Consumable lists the keys and codes whose default handling the page must
// suppress so the router can act on them. Quit keys are not among them: they
// still type while an editable element has focus.
func (k Keymap) Consumable() (keys, codes []string) {
	keys = slices.Sorted(maps.Keys(k.Directions))
	codes = slices.Sorted(maps.Keys(k.Replay))
	codes = append(codes, slices.Sorted(maps.Keys(k.Press))...)
	return keys, codes
}
