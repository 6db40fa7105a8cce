package model

// NodeStop is one event on a planned route: a request's pickup or dropoff
// at a node. Equality is by (Request, IsPickup); two stops for the same
// request are never equal to each other.
type NodeStop struct {
	Request  RequestHandle
	IsPickup bool
	Node     int
}

func (s NodeStop) Equal(o NodeStop) bool {
	return s.Request == o.Request && s.IsPickup == o.IsPickup
}

// InfeasibleCost is the sentinel cost denoting an infeasible trip. It is a
// first-class return value from the oracle, never a panic or error.
const InfeasibleCost = -1

// Trip is a candidate plan for one vehicle: the request set it would serve
// plus the ordered stop sequence realizing it.
type Trip struct {
	Vehicle VehicleHandle
	// Requests is the set of not-yet-boarded request handles served by this
	// trip. Passengers already onboard are not listed here.
	Requests map[RequestHandle]struct{}
	// OrderRecord is the ordered stop sequence; every request in Requests
	// has exactly two stops here, and each onboard passenger has one, its
	// dropoff.
	OrderRecord []NodeStop
	Cost        int

	IsFake    bool // placeholder produced mid-enumeration, filtered before the solver sees it
	UseMemory bool // produced by MEMORY mode for continuity
}

// Feasible reports whether this trip represents a usable plan.
func (t *Trip) Feasible() bool { return t.Cost != InfeasibleCost }

// RequestSet builds a Trip's Requests set from a slice, the common
// construction path out of the oracle and RTV builder.
func RequestSet(handles ...RequestHandle) map[RequestHandle]struct{} {
	out := make(map[RequestHandle]struct{}, len(handles))
	for _, h := range handles {
		out[h] = struct{}{}
	}
	return out
}

// SortedRequests returns a Trip's request handles in ascending order, for
// deterministic iteration and logging.
func (t *Trip) SortedRequests() []RequestHandle {
	out := make([]RequestHandle, 0, len(t.Requests))
	for h := range t.Requests {
		out = append(out, h)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
