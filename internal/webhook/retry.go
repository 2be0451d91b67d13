package webhook

import (
	"math/rand/v2"
	"time"
)

// DefaultMaxAttempts is stored on each new delivery. After the last
// attempt fails the delivery is marked exhausted and only a manual retry
// from the dashboard revives it.
const DefaultMaxAttempts = 5

// Backoff spaces out redeliveries. Receivers are usually small clinic
// integrations, so the schedule backs off quickly to hours.
type Backoff struct {
	// Steps[i] is the wait after the (i+1)th failure. The last step
	// repeats if more failures are recorded than there are steps.
	Steps []time.Duration
	// Jitter spreads each wait by up to ±Jitter of its length.
	Jitter float64
	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultBackoff is 30s, 2m, 10m, 1h, 6h with ±20% jitter.
var DefaultBackoff = Backoff{
	Steps: []time.Duration{
		30 * time.Second,
		2 * time.Minute,
		10 * time.Minute,
		time.Hour,
		6 * time.Hour,
	},
	Jitter: 0.2,
}

// Delay returns the wait after failures previous failed attempts.
func (b Backoff) Delay(failures int) time.Duration {
	if len(b.Steps) == 0 {
		return 0
	}
	base := b.Steps[max(0, min(failures, len(b.Steps)-1))]
	if b.Jitter <= 0 {
		return base
	}
	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	return time.Duration(float64(base) * (1 + b.Jitter*(2*r()-1)))
}

// Window is the longest a delivery can stay queued before it is exhausted,
// assuming every wait lands at the top of its jitter range.
func (b Backoff) Window(maxAttempts int) time.Duration {
	if len(b.Steps) == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < maxAttempts-1; i++ {
		total += b.Steps[min(i, len(b.Steps)-1)]
	}
	return time.Duration(float64(total) * (1 + b.Jitter))
}

// exhausted reports whether attempts has reached the delivery's budget.
func exhausted(attempts, maxAttempts int) bool {
	return attempts >= maxAttempts
}
