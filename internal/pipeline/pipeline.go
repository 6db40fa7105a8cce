// Package pipeline implements the Epoch Driver (C6): orchestrates
// RV -> RR -> RTV -> ILP per planning epoch, enforces continuity of
// previously-assigned-but-not-yet-picked-up requests, merges rebalancing,
// advances the simulator, and rolls the active-request set forward.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kabina-dispatch/kabina/internal/assign"
	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/logfile"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
	"github.com/kabina-dispatch/kabina/internal/rebalance"
	"github.com/kabina-dispatch/kabina/internal/rr"
	"github.com/kabina-dispatch/kabina/internal/rtv"
	"github.com/kabina-dispatch/kabina/internal/rv"
	"github.com/kabina-dispatch/kabina/internal/simulator"
	"github.com/kabina-dispatch/kabina/internal/telemetry"
	"github.com/kabina-dispatch/kabina/internal/timeutil"
	"github.com/kabina-dispatch/kabina/internal/workerpool"
)

// Driver wires C2 through C6 together for one run, holding the
// process-wide read-only collaborators (§9: config and network are passed
// in, never reached for ambient state).
type Driver struct {
	World  *model.World
	Cfg    *config.Settings
	Oracle *oracle.Oracle
	Pool   *workerpool.Pool
	Logs   *logfile.Set
	Metrics *telemetry.Metrics
	Log    zerolog.Logger

	active []model.RequestHandle // carry-over active-request set
}

// New builds a Driver bound to a loaded world and its collaborators.
func New(world *model.World, cfg *config.Settings, logs *logfile.Set, metrics *telemetry.Metrics, log zerolog.Logger) *Driver {
	return &Driver{
		World:   world,
		Cfg:     cfg,
		Oracle:  oracle.New(world.Network, cfg),
		Pool:    workerpool.New(cfg.NThreads),
		Logs:    logs,
		Metrics: metrics,
		Log:     log,
	}
}

// RunEpoch executes one planning epoch at time t, per §4.6.
func (d *Driver) RunEpoch(ctx context.Context, t int) error {
	newRequests := d.newlyArrived(t)
	d.active = append(d.active, newRequests...)

	activeVehicles := d.allVehicleHandles()
	d.recordEpochGauges(len(d.active), len(activeVehicles))

	rvGraph, rrGraph, err := d.buildGraphs(ctx, t, activeVehicles)
	if err != nil {
		return err
	}

	trips, err := d.buildRTV(ctx, t, activeVehicles, rvGraph, rrGraph)
	if err != nil {
		return err
	}

	if err := d.checkContinuityInvariants(activeVehicles, trips); err != nil {
		return err
	}

	decision, err := d.solve(t, trips)
	if err != nil {
		return err
	}
	d.applyDecision(t, trips, decision)
	d.markAssigned(trips, decision)

	d.logResults(t, trips, decision)

	unserved := d.missedRequestHandles(decision)
	idle := d.idleVehicles(activeVehicles)
	assignments, err := rebalance.Run(d.Oracle, d.World, t, idle, unserved, d.Logs.Rebalance)
	if err != nil {
		return err
	}
	d.applyRebalance(assignments)

	if err := simulator.Advance(ctx, d.Pool, d.World, d.Logs.Actions, t, d.Cfg.Interval); err != nil {
		return err
	}

	d.rollActiveSet(t)
	return nil
}

func (d *Driver) newlyArrived(t int) []model.RequestHandle {
	var out []model.RequestHandle
	for i, r := range d.World.Requests {
		h := model.RequestHandle(i)
		if r.EntryTime >= t && r.EntryTime < t+d.Cfg.Interval && !d.alreadyActive(h) {
			out = append(out, h)
		}
	}
	return out
}

func (d *Driver) alreadyActive(h model.RequestHandle) bool {
	for _, x := range d.active {
		if x == h {
			return true
		}
	}
	return false
}

func (d *Driver) allVehicleHandles() []model.VehicleHandle {
	out := make([]model.VehicleHandle, len(d.World.Vehicles))
	for i := range d.World.Vehicles {
		out[i] = model.VehicleHandle(i)
	}
	return out
}

func (d *Driver) buildGraphs(ctx context.Context, t int, vehicles []model.VehicleHandle) (*rv.Graph, *rr.Graph, error) {
	jobs := len(d.active)

	start := time.Now()
	rvParts := make([]*rv.Graph, 0, d.Cfg.NThreads+1)
	var rvMu sync.Mutex
	if err := d.Pool.AutoChunk(ctx, jobs, func(lo, hi int) error {
		part := rv.Build(d.Oracle, d.World, d.Cfg, t, d.active[lo:hi], vehicles)
		rvMu.Lock()
		rvParts = append(rvParts, part)
		rvMu.Unlock()
		return nil
	}); err != nil {
		return nil, nil, err
	}
	rvGraph := rv.Merge(rvParts)
	d.recordStage("rv", start)

	start = time.Now()
	rrParts := make([]*rr.Graph, 0, d.Cfg.NThreads+1)
	var rrMu sync.Mutex
	if err := d.Pool.AutoChunk(ctx, jobs, func(lo, hi int) error {
		part := rr.Build(d.Oracle, d.World, d.Cfg, t, d.active[lo:hi], d.active)
		rrMu.Lock()
		rrParts = append(rrParts, part)
		rrMu.Unlock()
		return nil
	}); err != nil {
		return nil, nil, err
	}
	rrGraph := rr.Merge(rrParts)
	d.recordStage("rr", start)

	return rvGraph, rrGraph, nil
}

func (d *Driver) buildRTV(ctx context.Context, t int, vehicles []model.VehicleHandle, rvGraph *rv.Graph, rrGraph *rr.Graph) ([]model.Trip, error) {
	start := time.Now()
	ordered := sortForLoadBalance(vehicles, rvGraph)

	allTrips := make([][]model.Trip, len(ordered))
	err := d.Pool.OneTaskPerUnit(ctx, len(ordered), func(i int) error {
		vh := ordered[i]
		v := d.World.Vehicle(vh)
		trips, err := rtv.BuildForVehicle(d.Oracle, d.World, d.Cfg, rrGraph, t, v, rvGraph.ByVehicle[vh], nil)
		if err != nil {
			return err
		}
		allTrips[i] = trips
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.recordStage("rtv", start)

	var out []model.Trip
	for _, ts := range allTrips {
		out = append(out, ts...)
	}
	if d.Logs.RTV != nil {
		for _, tr := range out {
			d.Logs.RTV.WriteLine(fmt.Sprintf("{'v':%d,'rs':%v,'c':%d}", tr.Vehicle, tr.SortedRequests(), tr.Cost))
		}
	}
	return out, nil
}

// sortForLoadBalance orders vehicles by (has-RV-edges desc, |RV-edges|
// desc, id asc) so the heaviest RTV work starts first (§5).
func sortForLoadBalance(vehicles []model.VehicleHandle, rvGraph *rv.Graph) []model.VehicleHandle {
	out := append([]model.VehicleHandle(nil), vehicles...)
	sort.Slice(out, func(i, j int) bool {
		ni, nj := len(rvGraph.ByVehicle[out[i]]), len(rvGraph.ByVehicle[out[j]])
		hi, hj := ni > 0, nj > 0
		if hi != hj {
			return hi
		}
		if ni != nj {
			return ni > nj
		}
		return out[i] < out[j]
	})
	return out
}

// checkContinuityInvariants enforces §4.4's invariants: every
// previously-assigned, not-yet-picked-up request must appear in its
// vehicle's trip list. A violation is a fatal bug, never silently
// recovered (§7).
func (d *Driver) checkContinuityInvariants(vehicles []model.VehicleHandle, trips []model.Trip) error {
	byVehicle := make(map[model.VehicleHandle][]model.Trip)
	for _, t := range trips {
		byVehicle[t.Vehicle] = append(byVehicle[t.Vehicle], t)
	}
	for _, vh := range vehicles {
		v := d.World.Vehicle(vh)
		if len(byVehicle[vh]) == 0 {
			return fmt.Errorf("pipeline: invariant violation: vehicle %d has no trips in its RTV list", vh)
		}
		for _, pending := range v.Pending {
			if !anyTripContains(byVehicle[vh], pending) {
				return fmt.Errorf("pipeline: invariant violation: pending request %d missing from vehicle %d's trip list, pending=%v", pending, vh, v.Pending)
			}
		}
	}
	return nil
}

func anyTripContains(trips []model.Trip, r model.RequestHandle) bool {
	for _, t := range trips {
		if _, ok := t.Requests[r]; ok {
			return true
		}
	}
	return false
}

func (d *Driver) solve(t int, trips []model.Trip) (assign.Decision, error) {
	start := time.Now()
	idealTravel := make(map[model.RequestHandle]int, len(d.World.Requests))
	alreadyAssigned := make(map[model.RequestHandle]bool)
	for i, r := range d.World.Requests {
		idealTravel[model.RequestHandle(i)] = r.IdealTravel
		if r.Assigned {
			alreadyAssigned[model.RequestHandle(i)] = true
		}
	}
	decision, err := assign.Solve(trips, idealTravel, alreadyAssigned, d.Cfg, assign.Options{
		MaxDuration:  10 * time.Second,
		RelGapTarget: 0.0,
		AbsGapTarget: 0.0,
		FullMode:     true,
	})
	d.recordStage("ilp", start)
	if err != nil {
		return assign.Decision{}, err
	}
	d.Logs.ILP.WriteLine(fmt.Sprintf("%d\t%f\t%s\t%f\t%f\t%d\t%s",
		timeutil.Encode(t), decision.Objective, decision.SolverTime, decision.AbsGap, decision.RelGap, decision.Assignments, decision.Status))
	return decision, nil
}

// applyDecision writes the chosen trip's order record back onto each
// vehicle, pruning trivial assignments (idle vehicle, empty trip) per
// §4.6.
func (d *Driver) applyDecision(t int, trips []model.Trip, decision assign.Decision) {
	for vh, idx := range decision.VehicleTrip {
		if idx < 0 {
			continue
		}
		trip := trips[idx]
		if len(trip.Requests) == 0 {
			continue // prune trivial assignment
		}
		v := d.World.Vehicle(vh)
		v.OrderRecord = trip.OrderRecord
		v.Pending = append([]model.RequestHandle(nil), trip.SortedRequests()...)
	}
}

// applyRebalance writes each rebalancing assignment's planned OrderRecord
// onto its vehicle, mirroring applyDecision, so the simulator's next
// Advance call actually drives the vehicle toward its target instead of
// finding an empty order record and falling back to Idle.
func (d *Driver) applyRebalance(assignments []rebalance.Assignment) {
	for _, a := range assignments {
		v := d.World.Vehicle(a.Vehicle)
		v.OrderRecord = a.Result.OrderRecord
	}
}

func (d *Driver) missedRequestHandles(decision assign.Decision) []model.RequestHandle {
	out := make([]model.RequestHandle, 0, len(decision.Missed))
	for r, missed := range decision.Missed {
		if missed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Driver) idleVehicles(vehicles []model.VehicleHandle) []model.VehicleHandle {
	var out []model.VehicleHandle
	for _, vh := range vehicles {
		if d.World.Vehicle(vh).State == model.Idle {
			out = append(out, vh)
		}
	}
	return out
}

// rollActiveSet drops requests that were picked up or whose window has
// expired unassigned, per §4.6.
func (d *Driver) rollActiveSet(t int) {
	var kept []model.RequestHandle
	for _, h := range d.active {
		r := d.World.Request(h)
		if r.PickedUp() {
			continue
		}
		if !r.Assigned && r.LatestBoarding < t+d.Cfg.Interval {
			continue
		}
		kept = append(kept, h)
	}
	d.active = kept
}

// markAssigned marks every request appearing in any selected trip as
// assigned, per §4.6's closing step.
func (d *Driver) markAssigned(trips []model.Trip, decision assign.Decision) {
	for _, idx := range decision.VehicleTrip {
		if idx < 0 {
			continue
		}
		for r := range trips[idx].Requests {
			d.World.Request(r).Assigned = true
		}
	}
}

func (d *Driver) recordStage(stage string, start time.Time) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (d *Driver) recordEpochGauges(requests, vehicles int) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.EpochRequests.Set(float64(requests))
	d.Metrics.EpochVehicles.Set(float64(vehicles))
}

func (d *Driver) logResults(t int, trips []model.Trip, decision assign.Decision) {
	if d.Metrics != nil {
		assignedRequests := 0
		for _, idx := range decision.VehicleTrip {
			if idx >= 0 {
				assignedRequests += len(trips[idx].Requests)
			}
		}
		d.Metrics.MissedTotal.Add(float64(len(decision.Missed)))
		d.Metrics.AssignedTotal.Add(float64(assignedRequests))
	}
	d.Logs.Results.WriteLine(fmt.Sprintf(
		"epoch=%06d assignments=%d missed=%d objective=%f solver_time=%s status=%s",
		timeutil.Encode(t), decision.Assignments, len(decision.Missed), decision.Objective, decision.SolverTime, decision.Status,
	))
}
