package livesync

import "time"

// BackoffStrategy defines how to space consecutive reconnection attempts.
type BackoffStrategy interface {
	// NextDelay returns the delay before the next reconnection attempt
	NextDelay(attempt int) time.Duration

	// Reset resets the backoff strategy after a successful connection
	Reset()
}

// ExponentialBackoff doubles (by Multiplier) the delay for each consecutive
// failed attempt, capped at MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(eb.InitialDelay)

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= eb.Multiplier
	}

	result := time.Duration(delay * multiplier)

	if result > eb.MaxDelay {
		result = eb.MaxDelay
	}

	return result
}

func (eb *ExponentialBackoff) Reset() {
	// Stateless: the attempt counter lives with the caller
}

// ReconnectPolicy configures automatic reconnection for one connection
// instance. Immutable for the lifetime of a connection attempt cycle.
type ReconnectPolicy struct {
	// Enabled turns automatic reconnection on. When false a socket closure
	// moves straight to disconnected with no timer scheduled.
	Enabled bool

	// InitialDelay before the first reconnection attempt
	InitialDelay time.Duration

	// MaxDelay caps the backoff curve
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay increases
	Multiplier float64

	// MaxAttempts caps consecutive failed attempts; 0 means unlimited
	MaxAttempts int
}

// DefaultReconnectPolicy is 1s doubling to 30s with unlimited attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:      true,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// backoff builds the strategy for this policy, defaulting sane values for
// zeroed fields so a partially filled policy still behaves.
func (p ReconnectPolicy) backoff() BackoffStrategy {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = 1 * time.Second
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}
	return &ExponentialBackoff{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   multiplier,
	}
}
