package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
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

	world := &model.World{
		Requests: []model.Request{reqA, reqB},
		Network:  net,
	}
	return world, cfg
}

func TestOracleSingleRequestCosts(t *testing.T) {
	world, cfg := threeNodeWorld()
	o := New(world.Network, cfg)
	v := &model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}

	resA, err := o.Plan(v, world, []model.RequestHandle{0}, Standard, 0)
	require.NoError(t, err)
	require.Equal(t, 60, resA.Cost)

	resB, err := o.Plan(v, world, []model.RequestHandle{1}, Standard, 0)
	require.NoError(t, err)
	require.Equal(t, 120, resB.Cost)
}

func TestOraclePooledTripCost(t *testing.T) {
	world, cfg := threeNodeWorld()
	o := New(world.Network, cfg)
	v := &model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}

	res, err := o.Plan(v, world, []model.RequestHandle{0, 1}, Standard, 0)
	require.NoError(t, err)
	require.Equal(t, 140, res.Cost)
	require.Len(t, res.OrderRecord, 4)
}

func TestOracleCapacityRejectsThirdPassenger(t *testing.T) {
	world, cfg := threeNodeWorld()
	// Zero waiting tolerance forces all three pickups to happen at t=0,
	// before any dropoff is possible, so capacity 2 cannot admit a third.
	world.Requests[0].LatestBoarding = 0
	world.Requests[1].LatestBoarding = 0
	reqC := model.NewRequest(2, 0, 1, 0, 60, 0, cfg.MaxDetour)
	world.Requests = append(world.Requests, reqC)

	o := New(world.Network, cfg)
	v := &model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}

	res, err := o.Plan(v, world, []model.RequestHandle{0, 1, 2}, Standard, 0)
	require.NoError(t, err)
	require.Equal(t, model.InfeasibleCost, res.Cost)
}

func TestOracleLatestBoardingExcludesVehicle(t *testing.T) {
	world, cfg := threeNodeWorld()
	r := world.Request(0)
	r.LatestBoarding = -1 // unreachable in time

	o := New(world.Network, cfg)
	v := &model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}

	res, err := o.Plan(v, world, []model.RequestHandle{0}, Standard, 0)
	require.NoError(t, err)
	require.Equal(t, model.InfeasibleCost, res.Cost)
}

func TestOracleUnimplementedObjectiveIsFatal(t *testing.T) {
	world, cfg := threeNodeWorld()
	cfg.CTSPObjective = config.CTSPObjectiveTotalWaiting
	o := New(world.Network, cfg)
	v := &model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}

	_, err := o.Plan(v, world, []model.RequestHandle{0}, Standard, 0)
	require.Error(t, err)
}
