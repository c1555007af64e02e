package router_test

import (
	"testing"

	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/router"
	"github.com/fleetgrid/routing/topology/topologytest"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersectionIsExclusive(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	r.SetOccupancy([]*router.Robot{
		{ID: "r1", Edge: &router.EdgeRef{From: "I1.in.e01", To: "I1.out.e04"}},
	})
	e, ok := r.Edge(router.EdgeRef{From: "I1.in.e10", To: "I1.out.e01"})
	require.True(t, ok)
	assert.False(t, r.GroupIsFree(e, "r2"))
	assert.True(t, r.GroupIsFree(e, "r1"))
	assert.False(t, r.CanEnter(e, "r2"))

	r.SetOccupancy(nil)
	assert.True(t, r.CanEnter(e, "r2"))
	r.SetRobotOnFutureEdge(router.EdgeRef{From: "I1.in.e01", To: "I1.out.e11"}, "r3")
	assert.False(t, r.CanEnter(e, "r2"))
}

func TestNarrowLaneNeedsEmptyTwin(t *testing.T) {
	r := newRouter(t, topologytest.ThreeWayIntersection())
	r.SetOccupancy([]*router.Robot{
		{ID: "r1", Edge: &router.EdgeRef{From: "C.out.xc", To: "X.in.xc"}},
	})
	e, ok := r.Edge(router.EdgeRef{From: "X.out.xc", To: "C.in.xc"})
	require.True(t, ok)
	assert.False(t, r.GroupIsFree(e, "r2"))

	same, _ := r.Edge(router.EdgeRef{From: "C.out.xc", To: "X.in.xc"})
	assert.True(t, r.GroupIsFree(same, "r2"))
}

func TestEdgeHasRoom(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	ref := router.EdgeRef{From: "I1.out.e04", To: "W1"}
	e, ok := r.Edge(ref)
	require.True(t, ok)
	require.NotNil(t, e.MaxRobots)
	robots := make([]*router.Robot, 0)
	for i := 0; i < *e.MaxRobots-1; i++ {
		robots = append(robots, &router.Robot{ID: string(rune('a' + i)), Edge: &ref})
	}
	r.SetOccupancy(robots)
	assert.True(t, r.EdgeHasRoom(e))
	r.SetRobotOnFutureEdge(ref, "z")
	assert.False(t, r.EdgeHasRoom(e))

	// 未设置容量的边只允许一台
	stand, _ := r.Edge(router.EdgeRef{From: "W1", To: "P1.dock"})
	assert.True(t, r.EdgeHasRoom(stand))
	r.SetRobotOnFutureEdge(router.EdgeRef{From: "W1", To: "P1.dock"}, "y")
	assert.False(t, r.EdgeHasRoom(stand))
}

func TestStandChainIsExclusive(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	ref := func(from, to string) router.EdgeRef { return router.EdgeRef{From: from, To: to} }
	edge := func(from, to string) *compiler.Edge {
		e, ok := r.Edge(ref(from, to))
		require.True(t, ok, "%s->%s", from, to)
		return e
	}
	entry := edge("W1", "P1.dock")
	chain := lo.Map(r.Graph().StandChain(entry), func(e *compiler.Edge, _ int) router.EdgeRef {
		return ref(e.From, e.To)
	})
	assert.ElementsMatch(t, []router.EdgeRef{
		ref("W1", "P1.dock"),
		ref("P1.dock", "P1.wait"),
		ref("P1.wait", "P1.undock"),
		ref("P1.undock", "P1.end"),
		ref("P1.end", "P1.dock"),
	}, chain)

	docking := ref("P1.dock", "P1.wait")
	r.SetOccupancy([]*router.Robot{{ID: "r1", Edge: &docking}})
	assert.False(t, r.GroupIsFree(entry, "r2"))
	assert.False(t, r.CanEnter(entry, "r2"))
	assert.True(t, r.GroupIsFree(edge("P1.wait", "P1.undock"), "r1"))

	leaving := ref("P1.end", "D1")
	r.SetOccupancy([]*router.Robot{{ID: "r1", Edge: &leaving}})
	assert.True(t, r.CanEnter(entry, "r2"))

	// 本轮已有机器人预定进入停靠链
	r.SetRobotOnFutureEdge(ref("W1", "P1.dock"), "r3")
	assert.False(t, r.GroupIsFree(edge("P1.undock", "P1.end"), "r2"))
}

func TestNarrowPoiLaneNeedsEmptyTwin(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	parkingOut := router.EdgeRef{From: "K1", To: "I1.in.e10"}
	r.SetOccupancy([]*router.Robot{{ID: "r1", Edge: &parkingOut}})
	e, ok := r.Edge(router.EdgeRef{From: "I1.out.e10", To: "K1"})
	require.True(t, ok)
	assert.False(t, r.GroupIsFree(e, "r2"))
	assert.True(t, r.GroupIsFree(e, "r1"))

	chargerOut := router.EdgeRef{From: "C1.end", To: "WD1.in.e09"}
	r.SetOccupancy([]*router.Robot{{ID: "r1", Edge: &chargerOut}})
	e, ok = r.Edge(router.EdgeRef{From: "WD1.out.e09", To: "C1.dock"})
	require.True(t, ok)
	assert.False(t, r.GroupIsFree(e, "r2"))

	r.SetOccupancy(nil)
	assert.True(t, r.CanEnter(e, "r2"))
}
