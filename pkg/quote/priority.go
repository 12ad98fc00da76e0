package quote

import "fmt"

// Priority classifies how urgently a fetch request needs upstream capacity.
// Higher priorities consume fewer rate-limit tokens, so under contention
// CRITICAL and HIGH requests are granted before NORMAL and LOW. LOW requests
// may be denied indefinitely under sustained load; that degradation is
// accepted.
type Priority int

const (
	// PriorityLow is for bulk background fetches (instrument dumps, warmups).
	PriorityLow Priority = iota

	// PriorityNormal is the default for periodic quote collection.
	PriorityNormal

	// PriorityHigh is for fetches on the critical collection path
	// (ATM strike resolution, option chains).
	PriorityHigh

	// PriorityCritical is reserved for health probes and operator actions.
	PriorityCritical
)

// TokenCost returns the number of rate-limit tokens one request of this
// priority consumes. Values mirror the upstream provider tuning: cheaper
// tokens for higher priorities so they win under contention.
func (p Priority) TokenCost() float64 {
	switch p {
	case PriorityCritical:
		return 0.5
	case PriorityHigh:
		return 0.8
	default:
		return 1.0
	}
}

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a configuration string to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// MaxPriority returns the higher of two priorities.
func MaxPriority(a, b Priority) Priority {
	if a > b {
		return a
	}
	return b
}
