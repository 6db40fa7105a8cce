package rtv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
	"github.com/kabina-dispatch/kabina/internal/rr"
)

func threeNodeWorld() (*model.World, *config.Settings) {
	net := &model.Network{
		Time: [][]int{
			{0, 60, 120},
			{60, 0, 80},
			{120, 80, 0},
		},
	}
	cfg := config.Default()
	cfg.MaxWaiting = 300
	cfg.MaxDetour = 600

	reqA := model.NewRequest(0, 0, 1, 0, 60, cfg.MaxWaiting, cfg.MaxDetour)
	reqB := model.NewRequest(1, 0, 2, 0, 120, cfg.MaxWaiting, cfg.MaxDetour)

	return &model.World{Requests: []model.Request{reqA, reqB}, Network: net}, cfg
}

func TestBuildForVehicleIncludesBaselineAndPair(t *testing.T) {
	world, cfg := threeNodeWorld()
	o := oracle.New(world.Network, cfg)
	v := &model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}

	rrGraph := rr.Build(o, world, cfg, 0, []model.RequestHandle{0, 1}, []model.RequestHandle{0, 1})

	trips, err := BuildForVehicle(o, world, cfg, rrGraph, 0, v, []model.RequestHandle{0, 1}, func() time.Time { return time.Unix(0, 0) })
	require.NoError(t, err)
	require.NotEmpty(t, trips)

	var sawBaseline, sawPair bool
	for _, tr := range trips {
		if len(tr.Requests) == 0 {
			sawBaseline = true
		}
		if len(tr.Requests) == 2 {
			sawPair = true
			require.Equal(t, 140, tr.Cost)
		}
	}
	require.True(t, sawBaseline, "rank-0 baseline trip must always be present")
	require.True(t, sawPair, "rank-2 pooled trip for both requests must be enumerated")
}

func TestBuildForVehicleHonorsWallClockBudget(t *testing.T) {
	world, cfg := threeNodeWorld()
	o := oracle.New(world.Network, cfg)
	v := &model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}
	rrGraph := rr.Build(o, world, cfg, 0, []model.RequestHandle{0, 1}, []model.RequestHandle{0, 1})

	base := time.Unix(0, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls > 1 {
			return base.Add(time.Hour) // blow past the deadline at the first check, before rank 1
		}
		return base
	}

	trips, err := BuildForVehicle(o, world, cfg, rrGraph, 0, v, []model.RequestHandle{0, 1}, clock)
	require.NoError(t, err)
	require.NotEmpty(t, trips)
}

func TestSetKeyIsOrderIndependent(t *testing.T) {
	a := model.RequestSet(3, 1, 2)
	b := model.RequestSet(2, 3, 1)
	require.Equal(t, setKey(a), setKey(b))
}

func TestWithinNewnessBudgetRejectsTooManyNewRequests(t *testing.T) {
	pending := map[model.RequestHandle]bool{0: true}
	union := model.RequestSet(0, 1, 2, 3, 4, 5) // 5 brand-new requests, budget 8 / cost 2 -> fails at the 5th
	require.False(t, withinNewnessBudget(union, pending))
}

func TestAprioriClosedRejectsUncoveredSubset(t *testing.T) {
	union := model.RequestSet(1, 2, 3)
	prevSets := []map[model.RequestHandle]struct{}{
		model.RequestSet(1, 2),
		model.RequestSet(1, 3),
		// {2,3} missing
	}
	require.False(t, aprioriClosed(union, prevSets))
}
