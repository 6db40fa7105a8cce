package rv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
)

func smallWorld() (*model.World, *config.Settings) {
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

	req := model.NewRequest(0, 0, 1, 0, 60, cfg.MaxWaiting, cfg.MaxDetour)
	near := model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}}
	far := model.Vehicle{ID: 1, Capacity: 2, Position: model.RoadPosition{Node: 2}}

	world := &model.World{
		Requests: []model.Request{req},
		Vehicles: []model.Vehicle{near, far},
		Network:  net,
	}
	return world, cfg
}

func TestBuildFindsFeasibleVehicleInBothDirections(t *testing.T) {
	world, cfg := smallWorld()
	o := oracle.New(world.Network, cfg)

	g := Build(o, world, cfg, 0, []model.RequestHandle{0}, []model.VehicleHandle{0, 1})

	require.Contains(t, g.ByRequest[0], model.VehicleHandle(0))
	require.Contains(t, g.ByVehicle[0], model.RequestHandle(0))
}

func TestBuildExcludesVehicleThatCannotReachInTime(t *testing.T) {
	world, cfg := smallWorld()
	world.Requests[0].LatestBoarding = 0 // only a vehicle already at the origin qualifies
	o := oracle.New(world.Network, cfg)

	g := Build(o, world, cfg, 0, []model.RequestHandle{0}, []model.VehicleHandle{0, 1})

	require.Contains(t, g.ByRequest[0], model.VehicleHandle(0))
	require.NotContains(t, g.ByRequest[0], model.VehicleHandle(1))
}

func TestBuildRespectsPruningRVK(t *testing.T) {
	world, cfg := smallWorld()
	// Add a third vehicle co-located with the first so both qualify.
	world.Vehicles = append(world.Vehicles, model.Vehicle{ID: 2, Capacity: 2, Position: model.RoadPosition{Node: 0}})
	cfg.PruningRVK = 1
	o := oracle.New(world.Network, cfg)

	g := Build(o, world, cfg, 0, []model.RequestHandle{0}, []model.VehicleHandle{0, 1, 2})
	require.Len(t, g.ByRequest[0], 1)
}
