// Package rtv incrementally enumerates, per vehicle, feasible request
// cliques up to capacity (C4). Each clique becomes a candidate Trip with a
// cost; the per-vehicle trip list feeds the assignment solver.
package rtv

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
	"github.com/kabina-dispatch/kabina/internal/rr"
)

// newnessBudgetStart and newnessBudgetCost implement the "newness budget"
// pruning rule (§4.4): a clique starts with a budget of 8 and loses 2 for
// every request not already in the vehicle's pending set; going negative
// skips the clique.
const (
	newnessBudgetStart = 8
	newnessBudgetCost  = 2
)

// Clock lets the per-vehicle wall-clock budget be faked in tests.
type Clock func() time.Time

// BuildForVehicle enumerates rank-by-rank cliques for one vehicle and
// returns its compacted trip list. This is the one-task-per-unit job run
// by the caller's worker pool (§5): per-vehicle wall time varies wildly so
// each vehicle is its own task.
func BuildForVehicle(
	o *oracle.Oracle,
	world *model.World,
	cfg *config.Settings,
	rrGraph *rr.Graph,
	now int,
	v *model.Vehicle,
	rvNeighbors []model.RequestHandle,
	clock Clock,
) ([]model.Trip, error) {
	if clock == nil {
		clock = time.Now
	}
	deadline := clock().Add(time.Duration(cfg.RTVTimeLimitMillis) * time.Millisecond)

	var trips []model.Trip

	// k = 0: baseline trip, always present (invariant 1, §8).
	baseline, err := o.Plan(v, world, nil, oracle.Standard, now)
	if err != nil {
		return nil, err
	}
	trips = append(trips, model.Trip{
		Vehicle:     v.ID,
		Requests:    model.RequestSet(),
		OrderRecord: baseline.OrderRecord,
		Cost:        baseline.Cost,
	})

	candidateSet := unionDedup(rvNeighbors, v.Pending)

	var prevRank []model.Trip // rank (k-1) trips, for Apriori closure + pairing

	for k := 1; k <= v.Capacity; k++ {
		if clock().After(deadline) {
			break
		}
		var thisRank []model.Trip
		if k == 1 {
			thisRank = buildRankOne(o, world, v, candidateSet, now)
		} else {
			thisRank = buildRankK(o, world, cfg, rrGraph, v, prevRank, now, k, deadline, clock)
		}
		if len(thisRank) == 0 {
			break
		}
		trips = append(trips, thisRank...)
		prevRank = thisRank
	}

	if v.HasPreviousAssignment() {
		mem, err := o.Plan(v, world, v.Pending, oracle.Memory, now)
		if err != nil {
			return nil, err
		}
		if mem.Cost == model.InfeasibleCost {
			return nil, fmt.Errorf("rtv: previous assignment for vehicle %d is no longer feasible under MEMORY, pending=%v", v.ID, v.Pending)
		}
		trips = append(trips, model.Trip{
			Vehicle:     v.ID,
			Requests:    model.RequestSet(v.Pending...),
			OrderRecord: mem.OrderRecord,
			Cost:        mem.Cost,
			UseMemory:   true,
		})
	}

	return compact(trips), nil
}

func buildRankOne(o *oracle.Oracle, world *model.World, v *model.Vehicle, candidates []model.RequestHandle, now int) []model.Trip {
	var out []model.Trip
	for _, rh := range candidates {
		res, err := o.Plan(v, world, []model.RequestHandle{rh}, oracle.Standard, now)
		if err != nil || res.Cost == model.InfeasibleCost {
			continue
		}
		out = append(out, model.Trip{
			Vehicle:     v.ID,
			Requests:    model.RequestSet(rh),
			OrderRecord: res.OrderRecord,
			Cost:        res.Cost,
		})
	}
	return out
}

func buildRankK(
	o *oracle.Oracle,
	world *model.World,
	cfg *config.Settings,
	rrGraph *rr.Graph,
	v *model.Vehicle,
	prevRank []model.Trip,
	now int,
	k int,
	deadline time.Time,
	clock Clock,
) []model.Trip {
	seen := make(map[string]bool)
	prevSets := make([]map[model.RequestHandle]struct{}, len(prevRank))
	for i, t := range prevRank {
		prevSets[i] = t.Requests
	}

	pendingSet := make(map[model.RequestHandle]bool, len(v.Pending))
	for _, h := range v.Pending {
		pendingSet[h] = true
	}

	var out []model.Trip
	for i := 0; i < len(prevRank); i++ {
		for j := i + 1; j < len(prevRank); j++ {
			if clock().After(deadline) {
				return out
			}
			union := unionSets(prevSets[i], prevSets[j])
			if len(union) != k {
				continue
			}
			key := setKey(union)
			if seen[key] {
				continue
			}
			seen[key] = true

			if !rrConnected(rrGraph, prevSets[i], prevSets[j]) {
				continue
			}
			if !aprioriClosed(union, prevSets) {
				continue
			}
			if !withinNewnessBudget(union, pendingSet) {
				continue
			}

			handles := setToSlice(union)
			res, err := o.Plan(v, world, handles, oracle.Standard, now)
			if err != nil || res.Cost == model.InfeasibleCost {
				continue
			}
			out = append(out, model.Trip{
				Vehicle:     v.ID,
				Requests:    union,
				OrderRecord: res.OrderRecord,
				Cost:        res.Cost,
			})
		}
	}
	return out
}

func rrConnected(g *rr.Graph, left, right map[model.RequestHandle]struct{}) bool {
	diffLeft := setDiff(left, right)
	diffRight := setDiff(right, left)
	for a := range diffLeft {
		for b := range diffRight {
			if !g.Has(a, b) {
				return false
			}
		}
	}
	return true
}

// aprioriClosed checks that every (k-1)-subset of union appears in rank
// (k-1) (§4.4 Apriori pruning).
func aprioriClosed(union map[model.RequestHandle]struct{}, prevSets []map[model.RequestHandle]struct{}) bool {
	members := setToSlice(union)
	for _, drop := range members {
		sub := make(map[model.RequestHandle]struct{}, len(union)-1)
		for h := range union {
			if h != drop {
				sub[h] = struct{}{}
			}
		}
		if !containsSet(prevSets, sub) {
			return false
		}
	}
	return true
}

func withinNewnessBudget(union map[model.RequestHandle]struct{}, pending map[model.RequestHandle]bool) bool {
	budget := newnessBudgetStart
	for h := range union {
		if !pending[h] {
			budget -= newnessBudgetCost
			if budget < 0 {
				return false
			}
		}
	}
	return true
}

// compact drops any trip with cost == model.InfeasibleCost, a final
// defensive pass so no placeholder ever escapes to the solver (§4.4).
func compact(trips []model.Trip) []model.Trip {
	out := trips[:0]
	for _, t := range trips {
		if t.Feasible() && !t.IsFake {
			out = append(out, t)
		}
	}
	return out
}

func unionDedup(a, b []model.RequestHandle) []model.RequestHandle {
	seen := make(map[model.RequestHandle]bool, len(a)+len(b))
	var out []model.RequestHandle
	for _, h := range a {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, h := range b {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

func unionSets(a, b map[model.RequestHandle]struct{}) map[model.RequestHandle]struct{} {
	out := make(map[model.RequestHandle]struct{}, len(a)+len(b))
	for h := range a {
		out[h] = struct{}{}
	}
	for h := range b {
		out[h] = struct{}{}
	}
	return out
}

func setDiff(a, b map[model.RequestHandle]struct{}) map[model.RequestHandle]struct{} {
	out := make(map[model.RequestHandle]struct{})
	for h := range a {
		if _, ok := b[h]; !ok {
			out[h] = struct{}{}
		}
	}
	return out
}

func setToSlice(s map[model.RequestHandle]struct{}) []model.RequestHandle {
	out := make([]model.RequestHandle, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	return out
}

func setKey(s map[model.RequestHandle]struct{}) string {
	members := setToSlice(s)
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j-1] > members[j]; j-- {
			members[j-1], members[j] = members[j], members[j-1]
		}
	}
	key := make([]byte, 0, len(members)*8)
	for _, m := range members {
		key = append(key, []byte(strconv.Itoa(int(m)))...)
		key = append(key, ',')
	}
	return string(key)
}

func containsSet(candidates []map[model.RequestHandle]struct{}, target map[model.RequestHandle]struct{}) bool {
	for _, c := range candidates {
		if setsEqual(c, target) {
			return true
		}
	}
	return false
}

func setsEqual(a, b map[model.RequestHandle]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for h := range a {
		if _, ok := b[h]; !ok {
			return false
		}
	}
	return true
}
