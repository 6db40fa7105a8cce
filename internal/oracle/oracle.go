// Package oracle implements the constrained insertion/routing oracle (C1):
// a capacitated Dial-a-Ride branch-and-bound that backs the RV, RR and RTV
// builders. Given a vehicle and a request set it returns either
// infeasibility or a minimum-VMT ordered stop plan.
package oracle

import (
	"fmt"
	"sort"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
)

// Mode selects how the oracle builds its stop universe.
type Mode int

const (
	// Standard plans afresh from the vehicle's onboard dropoffs plus 2*|R|
	// new stops.
	Standard Mode = iota
	// Memory replays the vehicle's stored OrderRecord exactly, re-costing
	// it against the current time to verify continued feasibility.
	Memory
	// Rebalancing relocates the vehicle to a single target node with no
	// window checks.
	Rebalancing
)

// LPLimit is the stop-universe threshold above which FIX_PREFIX freezes
// the previously planned prefix (§4.1).
const LPLimit = 8

// Oracle evaluates candidate trips against a fixed network and config.
type Oracle struct {
	net *model.Network
	cfg *config.Settings
}

// New builds an Oracle bound to a network and settings. The oracle itself
// holds no per-call mutable state; every Plan call is independent and safe
// to run concurrently across worker goroutines, since Network is read-only.
func New(net *model.Network, cfg *config.Settings) *Oracle {
	return &Oracle{net: net, cfg: cfg}
}

// Result is the oracle's return value: either infeasible (Cost ==
// model.InfeasibleCost) or a minimum-cost ordered stop plan.
type Result struct {
	Cost        int
	OrderRecord []model.NodeStop
}

func infeasible() Result { return Result{Cost: model.InfeasibleCost} }

// Plan is the oracle's contract: given a vehicle, a request set, a mode and
// the current epoch time, return infeasibility or a costed ordered plan.
func (o *Oracle) Plan(v *model.Vehicle, world *model.World, requests []model.RequestHandle, mode Mode, now int) (Result, error) {
	if o.cfg.CTSPObjective != config.CTSPObjectiveVMT {
		return Result{}, fmt.Errorf("oracle: objective %q is declared but not implemented", o.cfg.CTSPObjective)
	}

	switch mode {
	case Rebalancing:
		return o.planRebalance(v, world, requests, now), nil
	case Memory:
		return o.planMemory(v, world, now), nil
	default:
		return o.planStandard(v, world, requests, now), nil
	}
}

// planRebalance relocates V to the one request's origin then destination;
// this is used for repositioning, not passenger carriage, so no window
// check applies (§4.1 REBALANCING).
func (o *Oracle) planRebalance(v *model.Vehicle, world *model.World, requests []model.RequestHandle, now int) Result {
	if len(requests) != 1 {
		return infeasible()
	}
	r := world.Request(requests[0])
	here := v.Position.Node
	toOrigin := o.net.TimeBetween(here, r.Origin)
	toDest := o.net.TimeBetween(r.Origin, r.Destination)
	cost := toOrigin + toDest
	return Result{
		Cost: cost,
		OrderRecord: []model.NodeStop{
			{Request: r.ID, IsPickup: true, Node: r.Origin},
			{Request: r.ID, IsPickup: false, Node: r.Destination},
		},
	}
}

// planMemory replays the vehicle's stored order record as a single,
// already-fixed permutation and re-costs it against `now`.
func (o *Oracle) planMemory(v *model.Vehicle, world *model.World, now int) Result {
	if len(v.OrderRecord) == 0 {
		return Result{Cost: now - now, OrderRecord: nil}
	}
	chain := buildChainUniverse(v, world, v.OrderRecord)
	return o.search(v, world, chain, now, nil)
}

// stop is one arena-indexed record in the precedence DAG shared by the
// available stops during the search. Successors hold indices into the same
// slice; "available" is the sorted multiset of stops with no unsatisfied
// predecessor.
type stop struct {
	ns        model.NodeStop
	deadline  int // LatestBoarding for pickups, LatestAlight for dropoffs
	successors []int
	done      bool
}

func buildStandardUniverse(v *model.Vehicle, world *model.World, requests []model.RequestHandle) []stop {
	stops := make([]stop, 0, len(v.Onboard)+2*len(requests))
	indexOf := make(map[model.NodeStop]int)

	for _, h := range v.Onboard {
		r := world.Request(h)
		ns := model.NodeStop{Request: h, IsPickup: false, Node: r.Destination}
		stops = append(stops, stop{ns: ns, deadline: r.LatestAlight})
		indexOf[ns] = len(stops) - 1
	}
	for _, h := range requests {
		r := world.Request(h)
		pickup := model.NodeStop{Request: h, IsPickup: true, Node: r.Origin}
		drop := model.NodeStop{Request: h, IsPickup: false, Node: r.Destination}
		stops = append(stops, stop{ns: pickup, deadline: r.LatestBoarding})
		pIdx := len(stops) - 1
		stops = append(stops, stop{ns: drop, deadline: r.LatestAlight})
		dIdx := len(stops) - 1
		stops[pIdx].successors = append(stops[pIdx].successors, dIdx)
		indexOf[pickup] = pIdx
		indexOf[drop] = dIdx
	}
	return applyFixOnboard(stops, v, len(requests))
}

// applyFixOnboard chains onboard dropoffs in memory order when the stop
// universe is large enough that precedence optimization pays off (§4.1
// FIX_ONBOARD). Only the first onboard dropoff remains initially available.
func applyFixOnboard(stops []stop, v *model.Vehicle, newRequestCount int) []stop {
	if len(v.Onboard)+newRequestCount <= 4 || len(v.Onboard) == 0 {
		return stops
	}
	// Onboard dropoffs are the first len(v.Onboard) entries, built in
	// memory order above.
	for i := 0; i < len(v.Onboard)-1; i++ {
		stops[i].successors = append(stops[i].successors, i+1)
	}
	return stops
}

func buildChainUniverse(v *model.Vehicle, world *model.World, record []model.NodeStop) []stop {
	stops := make([]stop, len(record))
	for i, ns := range record {
		r := world.Request(ns.Request)
		deadline := r.LatestAlight
		if ns.IsPickup {
			deadline = r.LatestBoarding
		}
		stops[i] = stop{ns: ns, deadline: deadline}
		if i > 0 {
			stops[i-1].successors = []int{i}
		}
	}
	return stops
}

func initialAvailable(stops []stop) []int {
	hasPred := make([]bool, len(stops))
	for _, s := range stops {
		for _, succ := range s.successors {
			hasPred[succ] = true
		}
	}
	var avail []int
	for i := range stops {
		if !hasPred[i] {
			avail = append(avail, i)
		}
	}
	return avail
}

// canonicalLess orders candidate stops by node id, then dropoff-before-
// pickup, then identity, so consecutive same-node/same-flag candidates can
// be deduplicated (§4.1 step 3).
func canonicalLess(stops []stop, a, b int) bool {
	sa, sb := stops[a].ns, stops[b].ns
	if sa.Node != sb.Node {
		return sa.Node < sb.Node
	}
	if sa.IsPickup != sb.IsPickup {
		return !sa.IsPickup // dropoff before pickup
	}
	return a < b
}

func (o *Oracle) planStandard(v *model.Vehicle, world *model.World, requests []model.RequestHandle, now int) Result {
	universe := buildStandardUniverse(v, world, requests)
	var avail []int
	if len(universe) > LPLimit && v.HasPreviousAssignment() {
		var ok bool
		universe, avail, ok = fixPrefix(v, world, universe, requests)
		if !ok {
			return infeasible()
		}
	} else {
		avail = initialAvailable(universe)
	}
	return o.search(v, world, universe, now, avail)
}

// fixPrefix freezes the prefix of stops already planned last epoch when
// the stop universe exceeds LPLimit (§4.1 FIX_PREFIX). Returns ok=false
// when more than LPLimit/2 truly new requests arrived, signalling the
// prefix cannot absorb them and the caller should report infeasibility.
func fixPrefix(v *model.Vehicle, world *model.World, universe []stop, requests []model.RequestHandle) ([]stop, []int, bool) {
	prevSet := make(map[model.RequestHandle]bool)
	for _, ns := range v.OrderRecord {
		prevSet[ns.Request] = true
	}
	newCount := 0
	for _, h := range requests {
		if !prevSet[h] {
			newCount++
		}
	}
	if newCount > LPLimit/2 {
		return nil, nil, false
	}

	indexOf := make(map[model.NodeStop]int, len(universe))
	for i, s := range universe {
		indexOf[s.ns] = i
	}

	var matched []int
	for _, ns := range v.OrderRecord {
		if idx, ok := indexOf[ns]; ok {
			matched = append(matched, idx)
		}
	}

	freezeCount := len(matched) - LPLimit
	if freezeCount < 0 {
		freezeCount = 0
	}

	// Clear the frozen stops' own successors; the frozen prefix replaces
	// them with a strict chain. Stops outside the prefix keep the
	// precedence links built by buildStandardUniverse.
	for _, idx := range matched[:freezeCount] {
		universe[idx].successors = nil
	}
	for i := 0; i < freezeCount-1; i++ {
		universe[matched[i]].successors = []int{matched[i+1]}
	}

	var avail []int
	if freezeCount == 0 {
		avail = initialAvailable(universe)
	} else {
		avail = []int{matched[0]}
		released := initialAvailableIgnoring(universe, matched[:freezeCount])
		universe[matched[freezeCount-1]].successors = append(universe[matched[freezeCount-1]].successors, released...)
	}
	return universe, avail, true
}

// initialAvailableIgnoring computes the stops that would have had no
// predecessor had the frozen set never existed — these become the
// successors unlocked by the last frozen stop.
func initialAvailableIgnoring(universe []stop, frozen []int) []int {
	frozenSet := make(map[int]bool, len(frozen))
	for _, i := range frozen {
		frozenSet[i] = true
	}
	hasPred := make([]bool, len(universe))
	for i, s := range universe {
		if frozenSet[i] {
			continue
		}
		for _, succ := range s.successors {
			if !frozenSet[succ] {
				hasPred[succ] = true
			}
		}
	}
	var out []int
	for i := range universe {
		if frozenSet[i] || hasPred[i] {
			continue
		}
		out = append(out, i)
	}
	return out
}

// searchState is the mutable recursion frame; best is shared across the
// whole DFS to prune against the incumbent.
type searchState struct {
	universe []stop
	onboard  int // capacity consumed before any new pickup, for the capacity check baseline
	best     int
	bestPath []model.NodeStop
	found    bool
}

func (o *Oracle) search(v *model.Vehicle, world *model.World, universe []stop, now int, avail []int) Result {
	if len(universe) == 0 {
		return Result{Cost: 0, OrderRecord: nil}
	}
	if avail == nil {
		avail = initialAvailable(universe)
	}
	st := &searchState{universe: universe, best: -1}
	capacity := len(v.Onboard)
	here := model.Node(v.Position.Node)
	remaining := v.Position.Offset
	arrivalAtHere := now + remaining

	o.recurse(st, world, v, avail, here, arrivalAtHere, capacity, false, nil)
	if !st.found {
		return infeasible()
	}
	return Result{Cost: st.best - now, OrderRecord: st.bestPath}
}

// recurse is the exhaustive DFS branch-and-bound over stop permutations
// (§4.1 Algorithm). `here` is a NodeRef since the vehicle may be mid-dwell
// when recursion starts; `lastWasDropoff` drives the dwell rule.
func (o *Oracle) recurse(
	st *searchState,
	world *model.World,
	v *model.Vehicle,
	avail []int,
	here model.NodeRef,
	arrivalHere int,
	onboardCount int,
	lastWasDropoff bool,
	path []model.NodeStop,
) {
	if len(avail) == 0 {
		if !st.found || arrivalHere < st.best {
			st.found = true
			st.best = arrivalHere
			st.bestPath = append([]model.NodeStop(nil), path...)
		}
		return
	}

	sorted := append([]int(nil), avail...)
	sort.Slice(sorted, func(i, j int) bool { return canonicalLess(st.universe, sorted[i], sorted[j]) })

	var prevCandidate = -1
	for _, idx := range sorted {
		s := st.universe[idx]
		if prevCandidate >= 0 {
			ps := st.universe[prevCandidate]
			if ps.ns.Node == s.ns.Node && ps.ns.IsPickup == s.ns.IsPickup {
				continue // symmetric dedup, §4.1 step 3
			}
		}
		prevCandidate = idx

		target := model.Node(s.ns.Node)
		arrival := arrivalHere + o.net.TimeBetween(here.Real, target.Real)

		req := world.Request(s.ns.Request)
		if s.ns.IsPickup {
			if arrival < req.EntryTime {
				arrival = req.EntryTime
			}
		}

		dwellApplies := (lastWasDropoff && (s.ns.IsPickup || here.Real != target.Real)) ||
			(!lastWasDropoff && len(path) > 0 && (!s.ns.IsPickup || here.Real != target.Real))
		if dwellApplies {
			if lastWasDropoff {
				arrival += o.net.AlightDwellSec
			} else {
				arrival += o.net.PickupDwellSec
			}
			if s.ns.IsPickup && arrival < req.EntryTime {
				arrival = req.EntryTime
			}
		}

		if st.found && arrival >= st.best {
			continue
		}

		newCount := onboardCount
		if s.ns.IsPickup {
			newCount++
		} else {
			newCount--
		}
		if newCount > v.Capacity {
			continue
		}

		if s.ns.IsPickup {
			if arrival > req.LatestBoarding {
				continue
			}
		} else {
			if arrival > req.LatestAlight {
				continue
			}
		}

		if !o.forwardReachable(st.universe, avail, idx, arrival, target.Real, world) {
			continue
		}

		nextAvail := removeAndUnlock(st.universe, avail, idx)
		path = append(path, s.ns)
		o.recurse(st, world, v, nextAvail, target, arrival, newCount, !s.ns.IsPickup, path)
		path = path[:len(path)-1]
	}
}

// forwardReachable checks that committing to `idx` next does not strand
// any other still-available stop outside its window (§4.1 step 5).
func (o *Oracle) forwardReachable(universe []stop, avail []int, chosen int, arrival int, atNode int, world *model.World) bool {
	for _, other := range avail {
		if other == chosen {
			continue
		}
		s := universe[other]
		eta := arrival + o.net.TimeBetween(atNode, s.ns.Node)
		if eta > s.deadline {
			return false
		}
	}
	return true
}

func removeAndUnlock(universe []stop, avail []int, chosen int) []int {
	next := make([]int, 0, len(avail)+len(universe[chosen].successors))
	for _, idx := range avail {
		if idx != chosen {
			next = append(next, idx)
		}
	}
	next = append(next, universe[chosen].successors...)
	return next
}
