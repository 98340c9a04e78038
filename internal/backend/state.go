package backend

// Status is the mutable lifecycle state of a Backend. Unlike the health
// flag (alive), Status is driven by configuration migration, not by probes.
type Status int

const (
	// Active backends are eligible for selection.
	Active Status = iota

	// Draining backends are being removed by a migration. They are
	// immediately excluded from Selectable() and never return to Active.
	Draining
)

// String returns a human-readable state name.
func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Draining:
		return "DRAINING"
	default:
		return "UNKNOWN"
	}
}
