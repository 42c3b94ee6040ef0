package source

import "time"

// restartDelay is the wait between producer restarts. It doubles after
// every restart up to limit. Callers hold Runner.mu.
type restartDelay struct {
	first time.Duration
	limit time.Duration
	next  time.Duration
}

func newRestartDelay(first, limit time.Duration) *restartDelay {
	return &restartDelay{first: first, limit: limit, next: first}
}

// take returns the delay for this restart and doubles the one after it.
func (d *restartDelay) take() time.Duration {
	delay := d.next
	d.next = min(2*d.next, d.limit)
	return delay
}

// reset starts the next run of failures from the first delay again.
func (d *restartDelay) reset() {
	d.next = d.first
}
