package query

import "time"

// Status is the fetch status of a cache entry.
type Status int

const (
	StatusIdle    Status = iota // Created but never fetched, or fetch cancelled before any data.
	StatusLoading               // First fetch in flight, no data yet.
	StatusSuccess               // Data available.
	StatusError                 // Last fetch failed.
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of a cache entry.
type State struct {
	Key         Key
	Data        any
	HasData     bool
	Status      Status
	Err         error
	UpdatedAt   time.Time
	StaleAt     time.Time
	Invalidated bool
	Fetching    bool

	// Version increases on every change to the entry, so subscribers can
	// drop snapshots delivered out of order.
	Version uint64
}

// IsStale reports whether the snapshot would be refetched at now.
func (s State) IsStale(now time.Time) bool {
	return !s.HasData || s.Invalidated || !now.Before(s.StaleAt)
}

// MutationStatus is the lifecycle of a single mutation invocation.
type MutationStatus int

const (
	MutationIdle MutationStatus = iota
	MutationPending
	MutationSuccess
	MutationFailed
)

func (s MutationStatus) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationSuccess:
		return "success"
	case MutationFailed:
		return "error"
	default:
		return "unknown"
	}
}

// MutationState is held by whoever triggered a mutation. It is transient:
// views discard it when they are left or a new mutation of the same kind
// starts.
type MutationState struct {
	Status MutationStatus
	Err    error
}

// Pending reports whether the mutation is still in flight.
func (m MutationState) Pending() bool { return m.Status == MutationPending }

// Start returns the state for a newly started mutation.
func (m MutationState) Start() MutationState {
	return MutationState{Status: MutationPending}
}

// Settle returns the state after the mutation finished with err.
func (m MutationState) Settle(err error) MutationState {
	if err != nil {
		return MutationState{Status: MutationFailed, Err: err}
	}
	return MutationState{Status: MutationSuccess}
}
