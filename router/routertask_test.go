package router_test

import (
	"math"
	"testing"

	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/router"
	"github.com/fleetgrid/routing/topology"
	"github.com/fleetgrid/routing/topology/topologytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dockTask(id string) *router.Task {
	return &router.Task{
		ID: id,
		Steps: []router.Step{
			{Behaviour: compiler.BehaviourGoto, PoiID: topologytest.DockPoi},
			{Behaviour: compiler.BehaviourDock},
			{Behaviour: compiler.BehaviourWait},
			{Behaviour: compiler.BehaviourUndock},
		},
		Index:  -1,
		Status: router.TaskToDo,
	}
}

func swapTask(id string, start float64) *router.Task {
	return &router.Task{
		ID: "bat_ex_" + id,
		Steps: []router.Step{
			{Behaviour: compiler.BehaviourGoto, PoiID: topologytest.ChargerPoi},
			{Behaviour: compiler.BehaviourDock},
			{Behaviour: compiler.BehaviourBatEx},
			{Behaviour: compiler.BehaviourUndock},
		},
		Index:     -1,
		Status:    router.TaskToDo,
		StartTime: start,
	}
}

func TestTaskTravelStandsTime(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	cfg := config.Defaults().Graph
	drive, stand, err := r.TaskTravelStandsTime("I1.in.e01", dockTask("t1"))
	require.NoError(t, err)
	assert.Equal(t, r.GetPathLength("I1.in.e01", "P1.dock"), drive)
	assert.Equal(t, cfg.DockWeight+cfg.WaitWeight+cfg.UndockWeight, stand)

	started := dockTask("t2")
	started.Index = 2
	drive, stand, err = r.TaskTravelStandsTime("P1.wait", started)
	require.NoError(t, err)
	assert.Zero(t, drive)
	assert.Equal(t, cfg.WaitWeight+cfg.UndockWeight, stand)

	bad := dockTask("t3")
	bad.Steps[0].PoiID = "999"
	_, _, err = r.TaskTravelStandsTime("I1.in.e01", bad)
	assert.ErrorIs(t, err, router.ErrPlanning)
}

// A与B之间有一条绕远的普通路和一条经过排队点Q的近路
func queueShortcut() *topology.Builder {
	return topology.NewBuilder().
		Node("A", 0, 0, topology.RoleIntersection).
		Node("B", 20, 0, topology.RoleIntersection).
		Node("N1", 10, 60, topology.RoleNormal).
		PoiNode("Q", "501", 10, 0, 0, topology.RoleQueue).
		PoiNode("L", "401", 30, 0, 0, topology.RoleLoad).
		Edge("a1", "A", "N1", topology.TwoWay).
		Edge("a2", "N1", "B", topology.TwoWay).
		Edge("aq", "A", "Q", topology.OneWay).
		Edge("qb", "Q", "B", topology.OneWay).
		Edge("bl", "B", "L", topology.NarrowTwoWay)
}

func TestTaskTravelStandsTimeAvoidsOtherPois(t *testing.T) {
	r := newRouter(t, queueShortcut())
	task := &router.Task{
		ID:     "t1",
		Steps:  []router.Step{{Behaviour: compiler.BehaviourGoto, PoiID: "401"}},
		Index:  -1,
		Status: router.TaskToDo,
	}
	require.Contains(t, r.GetPath("A.in.a1", "L.wait"), "Q")
	direct := r.GetPathLength("A.in.a1", "L.wait")

	r.BlockOtherPois("A.in.a1", "L.wait")
	detour := r.GetPathLength("A.in.a1", "L.wait")
	r.UnblockAll()
	require.Greater(t, detour, direct)

	drive, stand, err := r.TaskTravelStandsTime("A.in.a1", task)
	require.NoError(t, err)
	assert.Equal(t, detour, drive)
	assert.Zero(t, stand)
	// 边权已恢复
	assert.Equal(t, direct, r.GetPathLength("A.in.a1", "L.wait"))
}

func TestTaskTravelStandsTimeUnreachable(t *testing.T) {
	site := topologytest.SampleSite().ClosedEdge("e13", "I2", "L1", topology.NarrowTwoWay)
	r := newRouter(t, site)
	task := &router.Task{
		ID:     "t1",
		Steps:  []router.Step{{Behaviour: compiler.BehaviourGoto, PoiID: topologytest.LoadPoi}},
		Index:  -1,
		Status: router.TaskToDo,
	}
	drive, stand, err := r.TaskTravelStandsTime("I1.in.e01", task)
	require.Error(t, err)
	assert.ErrorIs(t, err, router.ErrPlanning)
	var pe *router.PlanningError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, topologytest.LoadPoi, pe.PoiID)
	assert.Zero(t, drive)
	assert.Zero(t, stand)
	assert.False(t, math.IsNaN(drive))
}

func TestSelectNextTask(t *testing.T) {
	r := newRouter(t, topologytest.SampleSite())
	at := &router.EdgeRef{From: "I2.out.e03", To: "I1.in.e01"}
	healthy := router.Battery{Capacity: 90, MaxCapacity: 100, DriveUsage: 0.01, StandUsage: 0.01}
	robot := &router.Robot{ID: "r1", Edge: at, Battery: healthy}

	normal := dockTask("t1")
	swap := swapTask("r1", 1000)

	got, err := r.SelectNextTask(normal, nil, robot, 0)
	require.NoError(t, err)
	assert.Same(t, normal, got)

	got, err = r.SelectNextTask(normal, swap, robot, 0)
	require.NoError(t, err)
	assert.Same(t, normal, got)

	// 换电任务到期，进行中的普通任务也让出
	got, err = r.SelectNextTask(normal, swap, robot, 1000)
	require.NoError(t, err)
	assert.Same(t, swap, got)

	started := dockTask("t2")
	started.Index = 0
	got, err = r.SelectNextTask(started, swap, robot, 1000)
	require.NoError(t, err)
	assert.Same(t, swap, got)
	got, err = r.SelectNextTask(nil, swap, robot, 1000)
	require.NoError(t, err)
	assert.Same(t, swap, got)

	// 当前电量低于临界值，换电任务未到期也优先执行
	robot.Battery.Capacity = 10
	got, err = r.SelectNextTask(started, swap, robot, 0)
	require.NoError(t, err)
	assert.Same(t, swap, got)

	// 完成普通任务后电量将低于临界值
	robot.Battery = router.Battery{Capacity: 20, MaxCapacity: 100, DriveUsage: 1, StandUsage: 0}
	got, err = r.SelectNextTask(normal, swap, robot, 0)
	require.NoError(t, err)
	assert.Same(t, swap, got)

	// 空闲机器人只有未到期的换电任务
	robot.Battery = healthy
	got, err = r.SelectNextTask(nil, swap, robot, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}
