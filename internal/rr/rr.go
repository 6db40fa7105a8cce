// Package rr builds the Request-Request companion graph (C3): for each
// request, the other requests it could share a ride with, as judged by a
// fresh synthetic capacity-4 vehicle.
package rr

import (
	"sort"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
)

// syntheticCapacity is the capacity of the empty probe vehicle the oracle
// is run against when testing two requests for co-rideability (§4.3).
const syntheticCapacity = 4

// Graph is the RR result: a directed map r1 -> candidates, ordered
// ascending by detour factor.
type Graph struct {
	Edges map[model.RequestHandle][]model.RequestHandle
}

// Has reports whether an RR edge exists in either direction, the
// connectivity check RTV rank-k enumeration relies on (§4.4).
func (g *Graph) Has(a, b model.RequestHandle) bool {
	for _, x := range g.Edges[a] {
		if x == b {
			return true
		}
	}
	for _, x := range g.Edges[b] {
		if x == a {
			return true
		}
	}
	return false
}

// Build runs the RR feasibility check for every ordered pair drawn from
// targets x candidates. targets is the (possibly chunked) work item set;
// candidates is the full active-request pool each target is compared
// against, which must stay whole even when targets is one auto-chunked
// slice of a larger partition (§5) — see Merge for recombining the
// per-chunk results the caller's worker pool produces.
func Build(o *oracle.Oracle, world *model.World, cfg *config.Settings, now int, targets, candidates []model.RequestHandle) *Graph {
	g := &Graph{Edges: make(map[model.RequestHandle][]model.RequestHandle, len(targets))}
	for _, r1 := range targets {
		g.Edges[r1] = candidatesFor(o, world, cfg, now, r1, candidates)
	}
	return g
}

// Merge recombines Graphs built over disjoint target chunks (the same
// candidates pool throughout) into a single Graph.
func Merge(parts []*Graph) *Graph {
	out := &Graph{Edges: make(map[model.RequestHandle][]model.RequestHandle)}
	for _, p := range parts {
		if p == nil {
			continue
		}
		for r, edges := range p.Edges {
			out.Edges[r] = edges
		}
	}
	return out
}

type scored struct {
	request model.RequestHandle
	detour  float64
}

func candidatesFor(o *oracle.Oracle, world *model.World, cfg *config.Settings, now int, r1 model.RequestHandle, requests []model.RequestHandle) []model.RequestHandle {
	req1 := world.Request(r1)
	probe := &model.Vehicle{
		ID:       -1,
		Capacity: syntheticCapacity,
		Position: model.RoadPosition{PrevNode: req1.Origin, Node: req1.Origin, Offset: 0},
	}

	var hits []scored
	for _, r2 := range requests {
		if r2 == r1 {
			continue
		}
		req2 := world.Request(r2)

		entry := req1.EntryTime
		if now > entry {
			entry = now
		}
		waitBound := world.Network.TimeBetween(req1.Origin, req2.Origin) + entry
		if waitBound > req2.LatestBoarding {
			continue
		}

		res, err := o.Plan(probe, world, []model.RequestHandle{r1, r2}, oracle.Standard, now)
		if err != nil || res.Cost == model.InfeasibleCost {
			continue
		}
		hits = append(hits, scored{request: r2, detour: detourFactor(world, req1, req2)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].detour < hits[j].detour })

	var out []model.RequestHandle
	for _, h := range hits {
		out = append(out, h.request)
		if cfg.PruningRRK > 0 && len(out) >= cfg.PruningRRK {
			break
		}
	}
	return out
}

// detourFactor is the minimum, over both chaining directions, of the
// detour ratio (o1->o2->d1)/(o1->d1) and its symmetric counterpart (§4.3).
func detourFactor(world *model.World, r1, r2 *model.Request) float64 {
	t := world.Network.TimeBetween
	direct1 := t(r1.Origin, r1.Destination)
	direct2 := t(r2.Origin, r2.Destination)

	chain1 := float64(t(r1.Origin, r2.Origin)+t(r2.Origin, r1.Destination)) / float64(max1(direct1))
	chain2 := float64(t(r2.Origin, r1.Origin)+t(r1.Origin, r2.Destination)) / float64(max1(direct2))

	if chain1 < chain2 {
		return chain1
	}
	return chain2
}

func max1(x int) int {
	if x <= 0 {
		return 1
	}
	return x
}
