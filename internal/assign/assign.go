// Package assign implements the fleet-wide assignment ILP (C5): exactly
// one trip per vehicle, minimizing total cost with miss penalties or RMT
// rewards, built on nextmv-io/sdk/mip the way the corpus's own VRP/MIP
// demos wire a solver (order-fulfillment MIP: multimaps of boolean
// variables, one constraint per vehicle/request, threshold-0.5 decode).
package assign

import (
	"time"

	"github.com/nextmv-io/sdk/mip"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
)

// MissCost is the per-request miss penalty for SERVICERATE mode.
const MissCost = 1e7

// RMTReward is the per-request reward coefficient for RMT mode. Per the
// Open Question in the source material, this is added as a *positive*
// term to a minimization despite being named "reward" — the literal sign
// is preserved here, not corrected, and documented in DESIGN.md.
const RMTReward = 1.0

// Decision is the decoded outcome: for each vehicle the one trip index
// selected (-1 if none), and the set of missed requests.
type Decision struct {
	VehicleTrip map[model.VehicleHandle]int // index into the trips slice passed to Solve
	Missed      map[model.RequestHandle]bool

	Objective    float64
	SolverTime   time.Duration
	AbsGap       float64
	RelGap       float64
	Assignments  int
	Status       string // "Optimal" or "Suboptimal"
}

// Options bounds the solver per §4.5's "solver contract".
type Options struct {
	MaxDuration    time.Duration
	RelGapTarget   float64
	AbsGapTarget   float64
	FullMode       bool // true: every vehicle's trips sum to exactly 1; false: at most 1
}

// Solve builds and solves the ILP over a flat trip list. An empty trip
// list returns an empty Decision without invoking the solver (§4.5 "Empty
// input").
func Solve(trips []model.Trip, requestIdeal map[model.RequestHandle]int, alreadyAssigned map[model.RequestHandle]bool, cfg *config.Settings, opts Options) (Decision, error) {
	if len(trips) == 0 {
		return Decision{VehicleTrip: map[model.VehicleHandle]int{}, Missed: map[model.RequestHandle]bool{}, Status: "Optimal"}, nil
	}

	m := mip.NewModel()
	m.Objective().SetMinimize()

	e := make([]mip.Bool, len(trips))
	for i := range trips {
		e[i] = m.NewBool()
	}

	byVehicle := make(map[model.VehicleHandle][]int)
	byRequest := make(map[model.RequestHandle][]int)
	for i, t := range trips {
		byVehicle[t.Vehicle] = append(byVehicle[t.Vehicle], i)
		for r := range t.Requests {
			byRequest[r] = append(byRequest[r], i)
		}
	}

	// C1: one trip per vehicle (full) or at most one (non-full).
	for _, idxs := range byVehicle {
		kind := mip.Equal
		if !opts.FullMode {
			kind = mip.LessThanOrEqual
		}
		c := m.NewConstraint(kind, 1.0)
		for _, i := range idxs {
			c.NewTerm(1.0, e[i])
		}
	}

	missVar := make(map[model.RequestHandle]mip.Bool)
	for r, idxs := range byRequest {
		if alreadyAssigned[r] {
			// C2, promised case: no x escape, sum must equal 1 (§4.5).
			c := m.NewConstraint(mip.Equal, 1.0)
			for _, i := range idxs {
				c.NewTerm(1.0, e[i])
			}
			continue
		}
		x := m.NewBool()
		missVar[r] = x
		c := m.NewConstraint(mip.Equal, 1.0)
		for _, i := range idxs {
			c.NewTerm(1.0, e[i])
		}
		c.NewTerm(1.0, x)
	}

	for i, t := range trips {
		m.Objective().NewTerm(float64(t.Cost), e[i])
	}
	switch cfg.AssignmentObjective {
	case config.ObjectiveRMT:
		for r, x := range missVar {
			m.Objective().NewTerm(RMTReward*float64(requestIdeal[r]), x)
		}
	default: // SERVICERATE
		for _, x := range missVar {
			m.Objective().NewTerm(MissCost, x)
		}
	}

	solver, err := mip.NewSolver("highs", m)
	if err != nil {
		return Decision{}, err
	}
	solveOpts := mip.NewSolveOptions()
	if opts.MaxDuration > 0 {
		if err := solveOpts.SetMaximumDuration(opts.MaxDuration); err != nil {
			return Decision{}, err
		}
	}
	if err := solveOpts.SetMIPGapRelative(opts.RelGapTarget); err != nil {
		return Decision{}, err
	}
	if err := solveOpts.SetMIPGapAbsolute(opts.AbsGapTarget); err != nil {
		return Decision{}, err
	}
	solveOpts.SetVerbosity(mip.Off)

	solution, err := solver.Solve(solveOpts)
	if err != nil {
		return Decision{}, err
	}

	return decode(solution, trips, e, missVar, byVehicle)
}

func decode(solution mip.Solution, trips []model.Trip, e []mip.Bool, missVar map[model.RequestHandle]mip.Bool, byVehicle map[model.VehicleHandle][]int) (Decision, error) {
	d := Decision{
		VehicleTrip: make(map[model.VehicleHandle]int, len(byVehicle)),
		Missed:      make(map[model.RequestHandle]bool),
		SolverTime:  solution.RunTime(),
	}
	if solution == nil || !solution.HasValues() {
		d.Status = "Suboptimal"
		return d, nil
	}
	if solution.IsOptimal() {
		d.Status = "Optimal"
	} else {
		d.Status = "Suboptimal"
	}
	d.Objective = solution.ObjectiveValue()

	for vh, idxs := range byVehicle {
		for _, i := range idxs {
			if solution.Value(e[i]) > 0.5 {
				d.VehicleTrip[vh] = i
				d.Assignments++
				break
			}
		}
		if _, ok := d.VehicleTrip[vh]; !ok {
			d.VehicleTrip[vh] = -1
		}
	}
	for r, x := range missVar {
		if solution.Value(x) > 0.5 {
			d.Missed[r] = true
		}
	}
	return d, nil
}
