package rr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/oracle"
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

func TestBuildLinksCoRideableRequests(t *testing.T) {
	world, cfg := threeNodeWorld()
	o := oracle.New(world.Network, cfg)

	g := Build(o, world, cfg, 0, []model.RequestHandle{0, 1}, []model.RequestHandle{0, 1})

	require.True(t, g.Has(0, 1))
	require.True(t, g.Has(1, 0), "Has is symmetric")
}

func TestBuildExcludesRequestBeyondBoardingWindow(t *testing.T) {
	world, cfg := threeNodeWorld()
	world.Requests[1].LatestBoarding = -1 // request 1's boarding window has already passed
	o := oracle.New(world.Network, cfg)

	g := Build(o, world, cfg, 0, []model.RequestHandle{0, 1}, []model.RequestHandle{0, 1})

	require.False(t, g.Has(0, 1))
}

func TestGraphHasIsFalseForUnrelatedRequests(t *testing.T) {
	g := &Graph{Edges: map[model.RequestHandle][]model.RequestHandle{0: {1}}}
	require.False(t, g.Has(2, 3))
}
