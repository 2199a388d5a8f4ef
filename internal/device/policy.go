package device

import "time"

// Policy holds the per-device connection and dispatch tuning knobs.
type Policy struct {
	ConnectTimeout time.Duration // upper bound of one connection attempt
	CallTimeout    time.Duration // per-RPC response deadline
	BackoffMin     time.Duration // first reconnect delay
	BackoffMax     time.Duration // reconnect delay ceiling
	SuspendAfter   int           // consecutive failed attempts before suspension
	PollInterval   time.Duration // status poll fallback while connected
}

// DefaultPolicy returns the tuning used when the config file leaves a knob
// unset.
func DefaultPolicy() Policy {
	return Policy{
		ConnectTimeout: 8 * time.Second,
		CallTimeout:    5 * time.Second,
		BackoffMin:     1 * time.Second,
		BackoffMax:     30 * time.Second,
		SuspendAfter:   10,
		PollInterval:   10 * time.Second,
	}
}

// withDefaults fills zero-valued knobs from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = def.ConnectTimeout
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = def.CallTimeout
	}
	if p.BackoffMin <= 0 {
		p.BackoffMin = def.BackoffMin
	}
	if p.BackoffMax < p.BackoffMin {
		p.BackoffMax = def.BackoffMax
	}
	if p.SuspendAfter <= 0 {
		p.SuspendAfter = def.SuspendAfter
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	return p
}
