// Package simulator advances vehicle state by one planning interval (C9),
// consuming stops off each vehicle's order record and emitting actions.log
// events. It is the routing oracle's inverse: given a plan, it consumes
// time rather than searching for one.
package simulator

import (
	"context"
	"fmt"

	"github.com/kabina-dispatch/kabina/internal/logfile"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/timeutil"
	"github.com/kabina-dispatch/kabina/internal/workerpool"
)

// Advance steps every vehicle forward by interval seconds, starting at
// epoch time now, consuming order-record stops as their arrival falls
// within the step. Parallelized with the same auto-chunked discipline as
// C2/C3 (§5).
func Advance(ctx context.Context, pool *workerpool.Pool, world *model.World, actions *logfile.Writer, now, interval int) error {
	return pool.AutoChunk(ctx, len(world.Vehicles), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			advanceOne(world, actions, model.VehicleHandle(i), now, interval)
		}
		return nil
	})
}

func advanceOne(world *model.World, actions *logfile.Writer, vh model.VehicleHandle, now, interval int) {
	v := world.Vehicle(vh)
	remaining := interval

	for remaining > 0 {
		if v.Position.Offset > remaining {
			v.Position.Offset -= remaining
			remaining = 0
			break
		}
		remaining -= v.Position.Offset
		v.Position.PrevNode = v.Position.Node
		elapsed := interval - remaining

		if len(v.OrderRecord) == 0 {
			v.Position.Offset = 0
			v.State = model.Idle
			break
		}

		next := v.OrderRecord[0]
		travel := world.Network.TimeBetween(v.Position.Node, next.Node)
		if travel > remaining {
			v.Position.Node = next.Node
			v.Position.Offset = travel - remaining
			remaining = 0
			v.State = model.EnRoute
			break
		}

		remaining -= travel
		v.Position.Node = next.Node
		v.Position.Offset = 0
		v.OrderRecord = v.OrderRecord[1:]

		r := world.Request(next.Request)
		ts := timeutil.Encode(now + elapsed + travel)
		if next.IsPickup {
			r.BoardingTime = now + elapsed + travel
			v.Onboard = append(v.Onboard, next.Request)
			v.Pending = removeHandle(v.Pending, next.Request)
			v.State = model.Boarding
			actions.WriteLine(fmt.Sprintf("%d,%06d,%d,P R%d", v.ID, ts, next.Node, next.Request))
		} else {
			r.AlightingTime = now + elapsed + travel
			v.Onboard = removeHandle(v.Onboard, next.Request)
			v.State = model.InUse
			actions.WriteLine(fmt.Sprintf("%d,%06d,%d,A R%d", v.ID, ts, next.Node, next.Request))
		}
	}
}

func removeHandle(xs []model.RequestHandle, h model.RequestHandle) []model.RequestHandle {
	for i, x := range xs {
		if x == h {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
