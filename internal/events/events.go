package events

// ConfigEventKind enumerates ConfigEvent variants (spec.md §3).
type ConfigEventKind int

const (
	Migrated ConfigEventKind = iota
	ListenAddressChanged
)

func (k ConfigEventKind) String() string {
	switch k {
	case Migrated:
		return "migrated"
	case ListenAddressChanged:
		return "listen_address_changed"
	default:
		return "unknown"
	}
}

// ConfigEvent is broadcast whenever Context.migrate applies a new snapshot.
type ConfigEvent struct {
	Kind        ConfigEventKind
	NewAddress  string // only meaningful for ListenAddressChanged
}

// HealthEventKind enumerates HealthEvent variants.
type HealthEventKind int

const (
	BackendUp HealthEventKind = iota
	BackendDown
)

func (k HealthEventKind) String() string {
	if k == BackendUp {
		return "up"
	}
	return "down"
}

// HealthEvent is broadcast on every alive state transition.
type HealthEvent struct {
	Kind HealthEventKind
	ID   uint8
}

// ConnectionEventKind enumerates ConnectionEvent variants.
type ConnectionEventKind int

const (
	Opened ConnectionEventKind = iota
	Closed
)

// ConnectionEvent is broadcast when a proxied connection opens or closes.
// Within one connection, Opened always precedes Closed (spec.md §5); across
// connections no ordering is guaranteed.
type ConnectionEvent struct {
	Kind       ConnectionEventKind
	BackendID  uint8
	ConnID     string // correlates Opened and Closed for the same connection
	ClientAddr string // only set for Opened

	// Closed-only fields.
	DurationMs int64
	OK         bool
}

// FailureReason classifies why a BackendFailureEvent was raised.
type FailureReason int

const (
	DialFailure FailureReason = iota
	CopyFailure
)

func (r FailureReason) String() string {
	if r == DialFailure {
		return "dial_failure"
	}
	return "copy_failure"
}

// BackendFailureEvent is sent point-to-point from the proxy to the
// HealthChecker — never broadcast — so every failure is observed exactly
// once and the channel can apply real backpressure to a proxy that is
// failing faster than the checker can process it.
type BackendFailureEvent struct {
	ID     uint8
	Reason FailureReason
}
