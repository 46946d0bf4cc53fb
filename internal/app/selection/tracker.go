package selection

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"xray/internal/config/logger"
)

// MaxSelected caps how many logs can be picked for comparison
const MaxSelected = 2

// FSM states
const (
	Idle        = "idle"
	OneSelected = "one_selected"
	TwoSelected = "two_selected"
	Comparing   = "comparing"
)

// FSM events
const (
	Select   = "select"
	Deselect = "deselect"
	Compare  = "compare"
	Cancel   = "cancel"
)

// Tracker holds the operator's selection of logs and the comparison mode
// derived from it. The selection is ephemeral session state, never persisted.
// Comparison is only ever active while exactly two logs are selected.
type Tracker interface {
	ToggleSelect(id string) bool
	StartComparison(visible map[string]bool) bool
	CancelComparison()
	Drop(id string) bool
	Clear() bool
	Selected() []string
	IsSelected(id string) bool
	IsComparing() bool
	State() string
}

// tracker implements the Tracker interface
type tracker struct {
	machine *fsm.FSM
	ids     []string
	mu      sync.RWMutex
	log     logger.Logger
}

// NewTracker creates a selection tracker in the Idle state
func NewTracker(log logger.Logger) Tracker {
	t := &tracker{
		ids: make([]string, 0, MaxSelected),
		log: log.WithComponent("SELECTION"),
	}

	t.machine = newSelectionFSM(t.log)

	return t
}

// newSelectionFSM creates the state machine guarding selection transitions
func newSelectionFSM(log logger.Logger) *fsm.FSM {
	return fsm.NewFSM(
		Idle,
		fsm.Events{
			{Name: Select, Src: []string{Idle}, Dst: OneSelected},
			{Name: Select, Src: []string{OneSelected}, Dst: TwoSelected},
			{Name: Deselect, Src: []string{OneSelected}, Dst: Idle},
			{Name: Deselect, Src: []string{TwoSelected, Comparing}, Dst: OneSelected},
			{Name: Compare, Src: []string{TwoSelected}, Dst: Comparing},
			{Name: Cancel, Src: []string{Idle, OneSelected, TwoSelected, Comparing}, Dst: Idle},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				log.Debug().Msgf("SELECTION %s → %s (trigger: %s)", e.Src, e.Dst, e.Event)
			},
		},
	)
}

// ToggleSelect adds id to the selection, or removes it when already
// selected. Selecting a third log is a silent no-op: the selection is
// capped, it never evicts an earlier pick. Returns true when the selection
// changed.
func (t *tracker) ToggleSelect(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.index(id) >= 0 {
		return t.remove(id)
	}

	if len(t.ids) >= MaxSelected {
		t.log.Debug().Str("id", id).Msg("Selection full, ignoring")

		return false
	}

	if err := t.machine.Event(context.Background(), Select); err != nil {
		return false
	}

	t.ids = append(t.ids, id)

	return true
}

// StartComparison enters comparison mode. Legal only with exactly two logs
// selected, both of which must resolve in the currently visible result set;
// anything else is a silent no-op.
func (t *tracker) StartComparison(visible map[string]bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.machine.Current() != TwoSelected {
		return false
	}

	for _, id := range t.ids {
		if !visible[id] {
			t.log.Debug().Str("id", id).Msg("Selected log not visible, comparison refused")

			return false
		}
	}

	return t.machine.Event(context.Background(), Compare) == nil
}

// CancelComparison clears the selection entirely from any state
func (t *tracker) CancelComparison() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reset()
}

// Drop removes id from the selection if present, forcing comparison mode
// off when it was active. Called when the underlying log is deleted so the
// selection never dangles. Returns true when the selection changed.
func (t *tracker) Drop(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.index(id) < 0 {
		return false
	}

	return t.remove(id)
}

// Clear empties the selection, reporting whether anything was selected
func (t *tracker) Clear() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ids) == 0 {
		return false
	}

	t.reset()

	return true
}

// Selected returns the selected ids in selection order
func (t *tracker) Selected() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, len(t.ids))
	copy(ids, t.ids)

	return ids
}

// IsSelected reports whether id is currently selected
func (t *tracker) IsSelected(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.index(id) >= 0
}

// IsComparing reports whether comparison mode is active
func (t *tracker) IsComparing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.machine.Current() == Comparing
}

// State returns the current FSM state name
func (t *tracker) State() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.machine.Current()
}

// index returns the position of id in the selection, or -1. Called with the
// tracker lock held.
func (t *tracker) index(id string) int {
	for i, selected := range t.ids {
		if selected == id {
			return i
		}
	}

	return -1
}

// remove drops id from the selection and steps the machine down one state.
// Leaving Comparing this way enforces the rule that comparison is only
// active with two selected logs. Called with the tracker lock held.
func (t *tracker) remove(id string) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}

	if err := t.machine.Event(context.Background(), Deselect); err != nil {
		return false
	}

	t.ids = append(t.ids[:i], t.ids[i+1:]...)

	return true
}

// reset forces the machine back to Idle and empties the selection. Called
// with the tracker lock held.
func (t *tracker) reset() {
	if err := t.machine.Event(context.Background(), Cancel); err != nil {
		t.machine.SetState(Idle)
	}

	t.ids = t.ids[:0]
}
