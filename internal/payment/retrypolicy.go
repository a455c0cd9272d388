package payment

import "time"

// RetryPolicy computes how long to wait before the next payment attempt
type RetryPolicy interface {
	// Delay returns the wait after the given number of failed attempts (1-indexed)
	Delay(attempt int) time.Duration
}

// ScheduleRetryPolicy looks the delay up in a fixed table. Attempts outside
// the table fall back to Default.
type ScheduleRetryPolicy struct {
	Schedule map[int]time.Duration
	Default  time.Duration
}

// DefaultRetryPolicy waits 6h, 24h then 72h
func DefaultRetryPolicy() *ScheduleRetryPolicy {
	return &ScheduleRetryPolicy{
		Schedule: map[int]time.Duration{
			1: 6 * time.Hour,
			2: 24 * time.Hour,
			3: 72 * time.Hour,
		},
		Default: 6 * time.Hour,
	}
}

func (p *ScheduleRetryPolicy) Delay(attempt int) time.Duration {
	if d, ok := p.Schedule[attempt]; ok {
		return d
	}
	return p.Default
}
