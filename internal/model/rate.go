package model

// ComputeRate returns round(100*s/(s+f)) for the given counters, or 0 when
// nothing has been recorded. Halves round up.
func ComputeRate(c Counters) int {
	s := int64(c.Successes)
	t := int64(c.Successes) + int64(c.Failures)
	if t <= 0 {
		return 0
	}
	return int((200*s + t) / (2 * t))
}
