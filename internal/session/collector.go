package session

import "github.com/classraid/classraid-server/internal/engine"

// collector buffers the round's inputs: one answer and one action slot
// per player, last write wins. Per-phase submission flags decide
// completeness; the buffered slots survive across the round's input
// phases and are cleared only when a new round begins.
type collector struct {
	answers   map[string]string
	actions   map[string]engine.PendingAction
	optedHeal map[string]bool
	submitted map[string]bool
	required  []string
}

func newCollector() *collector {
	c := &collector{}
	c.resetRound()
	return c
}

// beginPhase installs the set of players whose input this phase waits on.
func (c *collector) beginPhase(required []string) {
	c.required = required
	c.submitted = make(map[string]bool)
}

// mark records that a player has submitted for the active phase.
func (c *collector) mark(playerID string) {
	c.submitted[playerID] = true
}

// drop removes a player from the active phase's wait set, used when they
// disconnect so the phase can complete without them.
func (c *collector) drop(playerID string) {
	kept := c.required[:0]
	for _, id := range c.required {
		if id != playerID {
			kept = append(kept, id)
		}
	}
	c.required = kept
}

// complete reports whether every required player has submitted.
func (c *collector) complete() bool {
	for _, id := range c.required {
		if !c.submitted[id] {
			return false
		}
	}
	return true
}

// action returns the player's buffered action, or the default base attack
// when they never chose one.
func (c *collector) action(playerID, defaultTarget string) engine.PendingAction {
	if a, ok := c.actions[playerID]; ok {
		return a
	}
	return engine.BaseAction(defaultTarget)
}

// resetRound clears all buffered input for the next question round.
func (c *collector) resetRound() {
	c.answers = make(map[string]string)
	c.actions = make(map[string]engine.PendingAction)
	c.optedHeal = make(map[string]bool)
	c.beginPhase(nil)
}
