// Package rv builds the Request-Vehicle feasibility graph (C2): for each
// request, the vehicles that could serve it alone within its windows.
package rv

import (
	"sort"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
)

// Graph is the RV result: request -> feasible vehicles, and its inverse.
type Graph struct {
	ByRequest map[model.RequestHandle][]model.VehicleHandle
	ByVehicle map[model.VehicleHandle][]model.RequestHandle
}

// Build runs the RV feasibility check for a chunk of requests against a
// candidate vehicle pool. The caller's worker pool auto-chunks the active
// request set into disjoint slices (§5) and calls Build once per chunk —
// Build itself is sequential, and safe to run concurrently across chunks
// since Network/World are read-only here; see Merge for recombining the
// per-chunk Graphs.
func Build(o *oracle.Oracle, world *model.World, cfg *config.Settings, now int, requests []model.RequestHandle, vehicles []model.VehicleHandle) *Graph {
	g := &Graph{
		ByRequest: make(map[model.RequestHandle][]model.VehicleHandle, len(requests)),
		ByVehicle: make(map[model.VehicleHandle][]model.RequestHandle),
	}
	for _, rh := range requests {
		feas := feasibleVehicles(o, world, cfg, now, rh, vehicles)
		g.ByRequest[rh] = feas
		for _, vh := range feas {
			g.ByVehicle[vh] = append(g.ByVehicle[vh], rh)
		}
	}
	for vh := range g.ByVehicle {
		sort.Slice(g.ByVehicle[vh], func(i, j int) bool { return g.ByVehicle[vh][i] < g.ByVehicle[vh][j] })
	}
	return g
}

// Merge recombines Graphs built over disjoint request chunks into a
// single Graph, re-sorting each vehicle's request list afterward since
// chunks interleave arbitrarily by completion order.
func Merge(parts []*Graph) *Graph {
	out := &Graph{
		ByRequest: make(map[model.RequestHandle][]model.VehicleHandle),
		ByVehicle: make(map[model.VehicleHandle][]model.RequestHandle),
	}
	for _, p := range parts {
		if p == nil {
			continue
		}
		for r, vs := range p.ByRequest {
			out.ByRequest[r] = vs
		}
		for v, rs := range p.ByVehicle {
			out.ByVehicle[v] = append(out.ByVehicle[v], rs...)
		}
	}
	for v := range out.ByVehicle {
		sort.Slice(out.ByVehicle[v], func(i, j int) bool { return out.ByVehicle[v][i] < out.ByVehicle[v][j] })
	}
	return out
}

type candidate struct {
	vehicle model.VehicleHandle
	wait    int
}

func feasibleVehicles(o *oracle.Oracle, world *model.World, cfg *config.Settings, now int, rh model.RequestHandle, vehicles []model.VehicleHandle) []model.VehicleHandle {
	r := world.Request(rh)

	var candidates []candidate
	for _, vh := range vehicles {
		v := world.Vehicle(vh)
		wait := now + world.Network.TimeBetween(v.Position.Node, r.Origin)
		if wait > r.LatestBoarding {
			continue
		}
		candidates = append(candidates, candidate{vehicle: vh, wait: wait})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].wait < candidates[j].wait })

	var out []model.VehicleHandle
	for _, c := range candidates {
		v := world.Vehicle(c.vehicle)
		res, err := o.Plan(v, world, []model.RequestHandle{rh}, oracle.Standard, now)
		if err != nil {
			continue
		}
		if res.Cost == model.InfeasibleCost {
			continue
		}
		out = append(out, c.vehicle)
		if cfg.PruningRVK > 0 && len(out) >= cfg.PruningRVK {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
