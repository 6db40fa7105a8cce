package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kabina-dispatch/kabina/internal/assign"
	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/logfile"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/telemetry"
)

func newTestDriver(t *testing.T, world *model.World, cfg *config.Settings) *Driver {
	t.Helper()
	logs, err := logfile.OpenSet(t.TempDir(), true, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(logs.Close)
	return New(world, cfg, logs, telemetry.New(), zerolog.Nop())
}

func threeNodeWorldOneVehicle() (*model.World, *config.Settings) {
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
	v := model.Vehicle{ID: 0, Capacity: 2, Position: model.RoadPosition{Node: 0}, State: model.Idle}

	world := &model.World{
		Requests: []model.Request{reqA, reqB},
		Vehicles: []model.Vehicle{v},
		Network:  net,
	}
	return world, cfg
}

func TestRunEpochAssignsBothRequestsToOneVehicle(t *testing.T) {
	world, cfg := threeNodeWorldOneVehicle()
	d := newTestDriver(t, world, cfg)

	err := d.RunEpoch(context.Background(), 0)
	require.NoError(t, err)

	require.True(t, world.Request(0).Assigned)
	require.True(t, world.Request(1).Assigned)

	require.Equal(t, float64(2), testutil.ToFloat64(d.Metrics.EpochRequests))
	require.Equal(t, float64(1), testutil.ToFloat64(d.Metrics.EpochVehicles))
	require.Equal(t, float64(2), testutil.ToFloat64(d.Metrics.AssignedTotal))
}

func TestNewlyArrivedOnlyPicksUpRequestsInTheCurrentWindow(t *testing.T) {
	world, cfg := threeNodeWorldOneVehicle()
	world.Requests[1].EntryTime = cfg.Interval * 3 // arrives well after epoch 0
	d := newTestDriver(t, world, cfg)

	got := d.newlyArrived(0)
	require.Equal(t, []model.RequestHandle{0}, got)
}

func TestCheckContinuityInvariantsFailsWhenVehicleHasNoTrips(t *testing.T) {
	world, cfg := threeNodeWorldOneVehicle()
	d := newTestDriver(t, world, cfg)

	err := d.checkContinuityInvariants([]model.VehicleHandle{0}, nil)
	require.Error(t, err)
}

func TestMarkAssignedOnlyMarksRequestsInSelectedTrips(t *testing.T) {
	world, cfg := threeNodeWorldOneVehicle()
	d := newTestDriver(t, world, cfg)

	trips := []model.Trip{
		{Vehicle: 0, Requests: model.RequestSet(0)},
		{Vehicle: 0, Requests: model.RequestSet(1)},
	}
	decision := assign.Decision{VehicleTrip: map[model.VehicleHandle]int{0: 0}}

	d.markAssigned(trips, decision)
	require.True(t, world.Request(0).Assigned)
	require.False(t, world.Request(1).Assigned)
}
