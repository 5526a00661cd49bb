// Package focus holds the single hotspot that drives the map view.
package focus

import (
	"sync"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// Reason says why the focus moved.
type Reason string

const (
	// ReasonInitial is the first automatic focus on the top entry.
	ReasonInitial Reason = "initial"
	// ReasonFallback replaces a focus whose cell disappeared from the entries.
	ReasonFallback Reason = "fallback"
	// ReasonUser is an explicit selection.
	ReasonUser Reason = "user"
)

// State is a point-in-time copy of the controller.
type State struct {
	Focused      bool
	CellID       domain.CellID
	UserSelected bool
}

// Transition describes one focus change.
type Transition struct {
	From   domain.CellID
	To     domain.CellID
	Reason Reason
}

// Controller is a two-state machine: unfocused until the first non-empty entry
// list, then focused on exactly one cell for the rest of the process. All
// methods are safe for concurrent use; concurrent selections are
// last-writer-wins.
type Controller struct {
	mu    sync.Mutex
	state State
}

// NewController returns an unfocused controller.
func NewController() *Controller {
	return &Controller{}
}

// Reconcile applies the automatic rules against the current merged entries.
// It focuses entries[0] the first time entries are non-empty, and again only
// when the focused cell is missing from a non-empty list. It never moves a
// focus whose cell is still present.
func (c *Controller) Reconcile(entries []domain.VisualHotspot) (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(entries) == 0 {
		return Transition{}, false
	}

	if !c.state.Focused {
		c.state = State{Focused: true, CellID: entries[0].CellID}
		return Transition{To: entries[0].CellID, Reason: ReasonInitial}, true
	}

	if indexOf(entries, c.state.CellID) >= 0 {
		return Transition{}, false
	}

	from := c.state.CellID
	c.state = State{Focused: true, CellID: entries[0].CellID}
	return Transition{From: from, To: entries[0].CellID, Reason: ReasonFallback}, true
}

// Select focuses id if it is present in entries. An unknown id is a no-op and
// reports false.
func (c *Controller) Select(id domain.CellID, entries []domain.VisualHotspot) (Transition, bool) {
	if indexOf(entries, id) < 0 {
		return Transition{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.state.CellID
	c.state = State{Focused: true, CellID: id, UserSelected: true}
	return Transition{From: from, To: id, Reason: ReasonUser}, true
}

// Current resolves the focused cell against entries. It reports false while
// unfocused or when the focused cell is not among entries.
func (c *Controller) Current(entries []domain.VisualHotspot) (domain.VisualHotspot, bool) {
	st := c.State()
	if !st.Focused {
		return domain.VisualHotspot{}, false
	}
	i := indexOf(entries, st.CellID)
	if i < 0 {
		return domain.VisualHotspot{}, false
	}
	return entries[i], true
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func indexOf(entries []domain.VisualHotspot, id domain.CellID) int {
	for i := range entries {
		if entries[i].CellID == id {
			return i
		}
	}
	return -1
}
