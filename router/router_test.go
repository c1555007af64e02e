package router_test

import (
	"math"
	"testing"

	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/router"
	"github.com/fleetgrid/routing/topology"
	"github.com/fleetgrid/routing/topology/topologytest"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, b *topology.Builder) *router.Router {
	cfg := config.Defaults()
	g, err := compiler.Compile(b.Build(), cfg.Graph)
	require.NoError(t, err)
	return router.New(g, cfg)
}

func TestGetPath(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	path := r.GetPath("I1.in.e01", "P1.dock")
	assert.Equal(t, []string{"I1.in.e01", "I1.out.e04", "W1", "P1.dock"}, path)

	edges := r.GetPathEdges("I1.in.e01", "P1.dock")
	require.Len(t, edges, 3)
	cost := lo.SumBy(edges, func(e *compiler.Edge) float64 { return *e.Weight })
	assert.Equal(t, cost, r.GetPathLength("I1.in.e01", "P1.dock"))

	assert.True(t, math.IsInf(r.GetPathLength("I1.in.e01", "nowhere"), 1))
	assert.Nil(t, r.GetPath("nowhere", "P1.dock"))
}

func TestBlockOtherPois(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	r.BlockOtherPois("I1.in.e01", "L1.wait")
	assert.True(t, math.IsInf(r.GetPathLength("I1.in.e01", "K1"), 1))
	assert.True(t, math.IsInf(r.GetPathLength("I1.in.e01", "P1.dock"), 1))
	assert.False(t, math.IsInf(r.GetPathLength("I1.in.e01", "L1.wait"), 1))
	assert.NotContains(t, r.GetPath("I1.in.e01", "L1.wait"), "Q1")

	r.UnblockAll()
	assert.False(t, math.IsInf(r.GetPathLength("I1.in.e01", "K1"), 1))

	// 机器人所在POI的组保持可通行
	r.BlockOtherPois("K1", "L1.wait")
	assert.False(t, math.IsInf(r.GetPathLength("K1", "L1.wait"), 1))
	r.UnblockAll()
}

func TestFutureEdges(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	ref := router.EdgeRef{From: "I1.out.e01", To: "I2.in.e03"}
	assert.Empty(t, r.GetRobotsOnFutureEdge(ref))
	r.SetRobotOnFutureEdge(ref, "r1")
	r.SetRobotOnFutureEdge(ref, "r2")
	assert.Equal(t, []string{"r1", "r2"}, r.GetRobotsOnFutureEdge(ref))
	r.ResetFutureEdges()
	assert.Empty(t, r.GetRobotsOnFutureEdge(ref))
}

func TestMaxAllowedRobotsUsingPois(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	allowed := r.GetMaxAllowedRobotsUsingPois()
	assert.Len(t, allowed, 5)
	for poi, n := range allowed {
		assert.GreaterOrEqual(t, n, 1, poi)
	}
	assert.Equal(t, 1, allowed[topologytest.LoadPoi])
	assert.Equal(t, 14, allowed[topologytest.ParkingPoi])
}

func TestGroupLookup(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	ref := router.EdgeRef{From: "I1.in.e01", To: "I1.out.e04"}
	group := r.GetGroupID(ref)
	assert.NotEqual(t, compiler.NoGroup, group)
	assert.Len(t, r.GetEdgesByGroup(group), 8)
	assert.True(t, r.IsIntersectionEdge(ref))
	assert.False(t, r.IsIntersectionEdge(router.EdgeRef{From: "I1.out.e04", To: "W1"}))
	assert.False(t, r.IsIntersectionEdge(router.EdgeRef{From: "P1.end", To: "P1.dock"}))
	assert.Equal(t, compiler.NoGroup, r.GetGroupID(router.EdgeRef{From: "a", To: "b"}))
}

func TestEndNodeResolvers(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	resolve := func(f func(string, topology.Role) (string, error), poi string) string {
		n, err := f(poi, "")
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, "P1.dock", resolve(r.GetEndGoToNode, topologytest.DockPoi))
	assert.Equal(t, "P1.wait", resolve(r.GetEndDockingNode, topologytest.DockPoi))
	assert.Equal(t, "P1.undock", resolve(r.GetEndWaitNode, topologytest.DockPoi))
	assert.Equal(t, "P1.end", resolve(r.GetEndUndockingNode, topologytest.DockPoi))
	assert.Equal(t, "L1.wait", resolve(r.GetEndGoToNode, topologytest.LoadPoi))
	assert.Equal(t, "L1.end", resolve(r.GetEndWaitNode, topologytest.LoadPoi))
	assert.Equal(t, "K1", resolve(r.GetEndGoToNode, topologytest.ParkingPoi))

	_, err := r.GetEndDockingNode(topologytest.LoadPoi, "")
	assert.ErrorIs(t, err, router.ErrPlanning)
	_, err = r.GetEndWaitNode(topologytest.QueuePoi, "")
	assert.ErrorIs(t, err, router.ErrPlanning)
	_, err = r.GetEndGoToNode(topologytest.DockPoi, topology.RoleCharger)
	assert.ErrorIs(t, err, router.ErrPlanning)

	_, err = r.GetEndGoToNode("999", "")
	var pe *router.PlanningError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "999", pe.PoiID)
	assert.Equal(t, "goto", pe.Op)

	n, err := r.GetEndNode(compiler.BehaviourBatEx, topologytest.ChargerPoi)
	require.NoError(t, err)
	assert.Equal(t, "C1.undock", n)
	_, err = r.GetEndNode(compiler.BehaviourBatEx, topologytest.DockPoi)
	assert.ErrorIs(t, err, router.ErrPlanning)
}

func TestRobotNode(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	assert.Equal(t, "W1", r.RobotNode(&router.Robot{Edge: &router.EdgeRef{From: "I1.out.e04", To: "W1"}}))
	assert.Equal(t, "P1.end", r.RobotNode(&router.Robot{PoiID: topologytest.DockPoi}))
	assert.Equal(t, "Q1", r.RobotNode(&router.Robot{PoiID: topologytest.QueuePoi}))
	assert.Empty(t, r.RobotNode(&router.Robot{PoiID: topology.NoPoi}))
}
