package model

// RequestKind is the direction of interest in an identity. A fetch entry
// tracks a chunk we want delivered, an offer entry tracks a chunk we are
// advertising outward.
type RequestKind int

const (
	KindFetch RequestKind = iota
	KindOffer
)

func (k RequestKind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindOffer:
		return "offer"
	default:
		return "unknown"
	}
}

// RequestState is the lifecycle state of a ledger entry. Idle is implicit,
// no entry exists for an idle identity.
type RequestState int

const (
	StatePending RequestState = iota
	StateResolved
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
