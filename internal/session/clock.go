package session

import "time"

// phaseClock is the single countdown driving one session's phase
// deadlines. Arming a new phase always cancels the previous clock, and a
// generation counter lets the session loop drop fires that raced a
// submission-driven advance. Only the session goroutine touches it.
type phaseClock struct {
	gen   int
	timer *time.Timer
}

// arm starts a countdown and returns its generation. fire runs on the
// timer goroutine; it must hand off to the session inbox, never mutate.
func (c *phaseClock) arm(d time.Duration, fire func(gen int)) int {
	c.cancel()
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(d, func() { fire(gen) })
	return gen
}

// cancel stops any armed countdown. Idempotent, safe after firing.
func (c *phaseClock) cancel() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// live reports whether a deadline fire with the given generation is the
// one currently armed, as opposed to a stale leftover.
func (c *phaseClock) live(gen int) bool {
	return c.timer != nil && gen == c.gen
}
