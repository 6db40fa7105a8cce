// Package rebalance assigns idle vehicles toward unserved demand (C10): a
// greedy nearest-vehicle match, not an iterative LP — only the fleet
// assignment ILP (C5) gets the real solver. Grounded on the minimal
// request/vehicle matching shape in mobius-scheduler's rr.go/vrp.go and the
// greedy nearest-match scaffolding in andy-trimble-vrp.
package rebalance

import (
	"fmt"
	"sort"

	"github.com/kabina-dispatch/kabina/internal/logfile"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
)

// Assignment is one vehicle's rebalancing target: the missed request whose
// origin/destination the oracle costed the relocation against (§4.1
// REBALANCING: "the one 'request' that actually encodes a target node").
type Assignment struct {
	Vehicle model.VehicleHandle
	Target  model.RequestHandle
	Result  oracle.Result
}

// Run matches idle vehicles to unserved (missed) requests, nearest vehicle
// to request origin first, and logs each choice to rebalance.log.
func Run(o *oracle.Oracle, world *model.World, now int, idle []model.VehicleHandle, unserved []model.RequestHandle, rebalanceLog *logfile.Writer) ([]Assignment, error) {
	available := append([]model.VehicleHandle(nil), idle...)
	var out []Assignment

	for _, rh := range unserved {
		if len(available) == 0 {
			break
		}
		req := world.Request(rh)

		bestIdx, bestTime := -1, -1
		for i, vh := range available {
			v := world.Vehicle(vh)
			t := world.Network.TimeBetween(v.Position.Node, req.Origin)
			if bestIdx == -1 || t < bestTime {
				bestIdx, bestTime = i, t
			}
		}
		vh := available[bestIdx]
		available = append(available[:bestIdx], available[bestIdx+1:]...)

		res, err := o.Plan(world.Vehicle(vh), world, []model.RequestHandle{rh}, oracle.Rebalancing, now)
		if err != nil {
			return nil, err
		}
		out = append(out, Assignment{Vehicle: vh, Target: rh, Result: res})

		world.Vehicle(vh).State = model.Rebalancing
		rebalanceLog.WriteLine(fmt.Sprintf("{'v':%d,'t':%d}", vh, req.Origin))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Vehicle < out[j].Vehicle })
	return out, nil
}
