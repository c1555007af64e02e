package dispatch_test

import (
	"strings"
	"testing"

	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/dispatch"
	"github.com/fleetgrid/routing/router"
	"github.com/fleetgrid/routing/topology/topologytest"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, cfg *config.Config) *dispatch.Dispatcher {
	g, err := compiler.Compile(topologytest.SampleSite().Build(), cfg.Graph)
	require.NoError(t, err)
	return dispatch.New(router.New(g, cfg))
}

// 从I2驶来，停在路口I1入口
func robotAtI1(id string) *router.Robot {
	return &router.Robot{
		ID:         id,
		Edge:       &router.EdgeRef{From: "I2.out.e03", To: "I1.in.e01"},
		PlanningOn: true,
		Free:       true,
		Battery:    router.Battery{Capacity: 90, MaxCapacity: 100, DriveUsage: 0.01, StandUsage: 0.01},
	}
}

func gotoTask(id, poi string, priority int) *router.Task {
	return &router.Task{
		ID:       id,
		Steps:    []router.Step{{Behaviour: compiler.BehaviourGoto, PoiID: poi}},
		Index:    -1,
		Status:   router.TaskToDo,
		Priority: priority,
	}
}

func TestCriticalBatteryPrefersSwap(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	robot := robotAtI1("r1")
	robot.Battery.Capacity = 10
	normal := gotoTask("t1", topologytest.LoadPoi, 1)
	swap := d.NewSwapTask("r1", topologytest.ChargerPoi, 1000)
	assert.True(t, strings.HasPrefix(swap.ID, "bat_ex_r1_"))

	plan, err := d.GetPlanAllFreeRobots([]*router.Robot{robot}, []*router.Task{normal, swap}, 0)
	require.NoError(t, err)
	require.Contains(t, plan, "r1")
	assert.Equal(t, swap.ID, plan["r1"].TaskID)
	assert.Equal(t, &router.EdgeRef{From: "I1.in.e01", To: "I1.out.e01"}, plan["r1"].NextEdge)
	require.NotNil(t, plan["r1"].EndBeh)
	assert.False(t, *plan["r1"].EndBeh)

	assert.Equal(t, router.TaskInProgress, swap.Status)
	assert.Equal(t, 0, swap.Index)
	assert.Equal(t, router.TaskToDo, normal.Status)
	assert.Empty(t, normal.RobotID)
}

func TestSingleLaneOneRobotPerTick(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	robots := []*router.Robot{robotAtI1("r1"), robotAtI1("r2")}
	tasks := []*router.Task{
		gotoTask("t1", topologytest.ParkingPoi, 1),
		gotoTask("t2", topologytest.ParkingPoi, 1),
	}
	plan, err := d.GetPlanAllFreeRobots(robots, tasks, 0)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	moving := lo.Filter(lo.Values(plan), func(e dispatch.PlanEntry, _ int) bool { return e.NextEdge != nil })
	require.Len(t, moving, 1)
	assert.Equal(t, &router.EdgeRef{From: "I1.in.e01", To: "I1.out.e10"}, moving[0].NextEdge)
	waiting := lo.Filter(lo.Values(plan), func(e dispatch.PlanEntry, _ int) bool { return e.NextEdge == nil })
	require.Len(t, waiting, 1)
	assert.Nil(t, waiting[0].EndBeh)

	ref := *moving[0].NextEdge
	assert.Len(t, d.Router().GetRobotsOnFutureEdge(ref), 1)
}

func TestInProgressTaskAdvances(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	robot := &router.Robot{
		ID:         "r1",
		Edge:       &router.EdgeRef{From: "W1", To: "P1.dock"},
		PlanningOn: true,
		Battery:    router.Battery{Capacity: 90, MaxCapacity: 100},
	}
	task := &router.Task{
		ID: "t1",
		Steps: []router.Step{
			{Behaviour: compiler.BehaviourGoto, PoiID: topologytest.DockPoi},
			{Behaviour: compiler.BehaviourDock},
			{Behaviour: compiler.BehaviourWait},
			{Behaviour: compiler.BehaviourUndock},
		},
		Index:   0,
		Status:  router.TaskInProgress,
		RobotID: "r1",
	}
	ghost := &router.Task{ID: "t2", Status: router.TaskInProgress, RobotID: "ghost", Index: 0,
		Steps: []router.Step{{Behaviour: compiler.BehaviourGoto, PoiID: topologytest.LoadPoi}}}

	plan, err := d.GetPlanAllFreeRobots([]*router.Robot{robot}, []*router.Task{task, ghost}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Index)
	assert.True(t, robot.BehaviourDone)
	assert.Equal(t, &router.EdgeRef{From: "P1.dock", To: "P1.wait"}, plan["r1"].NextEdge)
	require.NotNil(t, plan["r1"].EndBeh)
	assert.True(t, *plan["r1"].EndBeh)
	assert.Equal(t, []*router.Task{ghost}, d.Unanalyzed())

	// 行为未结束时不前进
	robot.Edge = &router.EdgeRef{From: "P1.dock", To: "P1.wait"}
	robot.TimeRemaining = 12
	plan, err = d.GetPlanAllFreeRobots([]*router.Robot{robot}, []*router.Task{task}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Index)
	assert.Nil(t, plan["r1"].NextEdge)
}

func TestTaskFinishes(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	robot := &router.Robot{ID: "r1", Edge: &router.EdgeRef{From: "I1.out.e10", To: "K1"}, PlanningOn: true}
	task := gotoTask("t1", topologytest.ParkingPoi, 0)
	task.Status, task.RobotID, task.Index = router.TaskInProgress, "r1", 0

	plan, err := d.GetPlanAllFreeRobots([]*router.Robot{robot}, []*router.Task{task}, 0)
	require.NoError(t, err)
	assert.Equal(t, router.TaskDone, task.Status)
	assert.NotContains(t, plan, "r1")
	assert.True(t, robot.Free)
}

func TestAdmissionControl(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	// L1只允许一台机器人，r3已停在L1
	idle := &router.Robot{ID: "r3", PoiID: topologytest.LoadPoi, PlanningOn: true, Free: true}
	r1 := robotAtI1("r1")
	load := gotoTask("t1", topologytest.LoadPoi, 10)
	park := gotoTask("t2", topologytest.ParkingPoi, 1)
	tasks := []*router.Task{load, park}

	d.Load([]*router.Robot{idle, r1}, tasks, 0)
	assert.Equal(t, map[string]int{topologytest.LoadPoi: 1}, d.GetRobotsUsingPois())
	assert.Equal(t, 0, d.GetFreeSlotsInPois()[topologytest.LoadPoi])
	assert.Equal(t, []string{"r3"}, d.GetRobotsIDBlockingUsedPoi())
	free := d.GetFreeTaskToAssign(2)
	assert.Equal(t, []*router.Task{park}, free)

	assignments := d.AssignTasksToRobots(free, []string{"r3", "r1"})
	require.Len(t, assignments, 1)
	assert.Equal(t, "r3", assignments[0].RobotID)
	assert.Equal(t, "r3", park.RobotID)
	assert.Empty(t, d.GetFreeTaskToAssign(2))
}

func TestTaskOrder(t *testing.T) {
	early := gotoTask("early", topologytest.ParkingPoi, 1)
	urgent := gotoTask("urgent", topologytest.ParkingPoi, 5)
	urgent.StartTime = 5
	future := gotoTask("future", topologytest.ParkingPoi, 9)
	future.StartTime = 100

	d := newDispatcher(t, config.Defaults())
	d.Load(nil, []*router.Task{early, urgent, future}, 10)
	assert.Equal(t, []*router.Task{urgent, early}, d.GetFreeTaskToAssign(5))

	cfg := config.Defaults()
	cfg.Dispatch.TaskOrder = config.OrderByStartTime
	d = newDispatcher(t, cfg)
	d.Load(nil, []*router.Task{early, urgent, future}, 10)
	assert.Equal(t, []*router.Task{early, urgent}, d.GetFreeTaskToAssign(5))
}

func TestPlanningErrorParksTask(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	bad := gotoTask("bad", "999", 1)
	plan, err := d.GetPlanAllFreeRobots([]*router.Robot{robotAtI1("r1")}, []*router.Task{bad}, 0)
	assert.ErrorIs(t, err, router.ErrPlanning)
	assert.Empty(t, plan)
	assert.Equal(t, []*router.Task{bad}, d.Unanalyzed())
}

func TestPlanSelectedRobot(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	robots := []*router.Robot{robotAtI1("r1"), robotAtI1("r2")}
	tasks := []*router.Task{gotoTask("t1", topologytest.LoadPoi, 1)}
	entry, err := d.GetPlanSelectedRobot("r2", robots, tasks, 0)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "t1", entry.TaskID)
	assert.Equal(t, "r2", tasks[0].RobotID)

	entry, err = d.GetPlanSelectedRobot("unknown", robots, tasks, 0)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStandChainHoldsFollower(t *testing.T) {
	d := newDispatcher(t, config.Defaults())
	r1 := &router.Robot{ID: "r1", Edge: &router.EdgeRef{From: "P1.dock", To: "P1.wait"}, TimeRemaining: 12}
	dock := &router.Task{
		ID: "t1",
		Steps: []router.Step{
			{Behaviour: compiler.BehaviourGoto, PoiID: topologytest.DockPoi},
			{Behaviour: compiler.BehaviourDock},
			{Behaviour: compiler.BehaviourWait},
			{Behaviour: compiler.BehaviourUndock},
		},
		Index:   1,
		Status:  router.TaskInProgress,
		RobotID: "r1",
	}
	r2 := &router.Robot{ID: "r2", Edge: &router.EdgeRef{From: "I1.out.e04", To: "W1"}, PlanningOn: true}
	follow := gotoTask("t2", topologytest.DockPoi, 1)
	follow.Status, follow.RobotID, follow.Index = router.TaskInProgress, "r2", 0

	plan, err := d.GetPlanAllFreeRobots([]*router.Robot{r1, r2}, []*router.Task{dock, follow}, 0)
	require.NoError(t, err)
	require.Contains(t, plan, "r2")
	assert.Nil(t, plan["r2"].NextEdge)

	// r1离开停靠站后r2可以进入
	r1.Edge = &router.EdgeRef{From: "P1.end", To: "D1"}
	r1.TimeRemaining = 0
	plan, err = d.GetPlanAllFreeRobots([]*router.Robot{r1, r2}, []*router.Task{follow}, 1)
	require.NoError(t, err)
	require.Contains(t, plan, "r2")
	assert.Equal(t, &router.EdgeRef{From: "W1", To: "P1.dock"}, plan["r2"].NextEdge)
}

func TestNarrowPoiLaneHoldsOncoming(t *testing.T) {
	cases := []struct {
		name   string
		leave  router.EdgeRef
		at     router.EdgeRef
		task   func(d *dispatch.Dispatcher) *router.Task
		enters router.EdgeRef
	}{
		{
			name:  "parking",
			leave: router.EdgeRef{From: "K1", To: "I1.in.e10"},
			at:    router.EdgeRef{From: "I1.in.e01", To: "I1.out.e10"},
			task: func(*dispatch.Dispatcher) *router.Task {
				return gotoTask("t1", topologytest.ParkingPoi, 1)
			},
			enters: router.EdgeRef{From: "I1.out.e10", To: "K1"},
		},
		{
			name:  "charger",
			leave: router.EdgeRef{From: "C1.end", To: "WD1.in.e09"},
			at:    router.EdgeRef{From: "WD1.in.e08", To: "WD1.out.e09"},
			task: func(d *dispatch.Dispatcher) *router.Task {
				return d.NewSwapTask("r2", topologytest.ChargerPoi, 0)
			},
			enters: router.EdgeRef{From: "WD1.out.e09", To: "C1.dock"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := newDispatcher(t, config.Defaults())
			leave, at := c.leave, c.at
			r1 := &router.Robot{ID: "r1", Edge: &leave}
			r2 := &router.Robot{ID: "r2", Edge: &at, PlanningOn: true}
			task := c.task(d)
			task.Status, task.RobotID, task.Index = router.TaskInProgress, "r2", 0

			plan, err := d.GetPlanAllFreeRobots([]*router.Robot{r1, r2}, []*router.Task{task}, 0)
			require.NoError(t, err)
			require.Contains(t, plan, "r2")
			assert.Nil(t, plan["r2"].NextEdge)

			r1.Edge = nil
			plan, err = d.GetPlanAllFreeRobots([]*router.Robot{r1, r2}, []*router.Task{task}, 1)
			require.NoError(t, err)
			require.Contains(t, plan, "r2")
			assert.Equal(t, &c.enters, plan["r2"].NextEdge)
		})
	}
}

func TestSwapWaitsForChargerSlot(t *testing.T) {
	cfg := config.Defaults()
	cfg.Graph.RobotLength = 100
	d := newDispatcher(t, cfg)
	ceiling := d.Router().GetMaxAllowedRobotsUsingPois()[topologytest.ChargerPoi]
	require.Positive(t, ceiling)

	robots := make([]*router.Robot, 0, ceiling+1)
	swaps := make([]*router.Task, 0, ceiling+1)
	for i := 0; i <= ceiling; i++ {
		robot := robotAtI1(string(rune('a' + i)))
		robots = append(robots, robot)
		swaps = append(swaps, d.NewSwapTask(robot.ID, topologytest.ChargerPoi, 0))
	}
	plan, err := d.GetPlanAllFreeRobots(robots, swaps, 0)
	require.NoError(t, err)
	assert.Len(t, plan, ceiling)
	started := lo.Filter(swaps, func(t *router.Task, _ int) bool { return t.Status == router.TaskInProgress })
	assert.Len(t, started, ceiling)
	waiting := lo.Filter(swaps, func(t *router.Task, _ int) bool { return t.Status == router.TaskToDo })
	require.Len(t, waiting, 1)
	assert.NotContains(t, plan, waiting[0].RobotID)
}

func TestRunningTaskKeptWhenChargerFull(t *testing.T) {
	cfg := config.Defaults()
	cfg.Graph.RobotLength = 100
	d := newDispatcher(t, cfg)
	ceiling := d.Router().GetMaxAllowedRobotsUsingPois()[topologytest.ChargerPoi]

	// 充电POI已被占满
	robots := make([]*router.Robot, 0, ceiling+1)
	tasks := make([]*router.Task, 0, ceiling+2)
	for i := 0; i < ceiling; i++ {
		robot := robotAtI1(string(rune('a' + i)))
		robot.PlanningOn = false
		swap := d.NewSwapTask(robot.ID, topologytest.ChargerPoi, 0)
		swap.Status, swap.Index = router.TaskInProgress, 0
		robots = append(robots, robot)
		tasks = append(tasks, swap)
	}
	low := robotAtI1("low")
	low.Battery.Capacity = 10
	normal := gotoTask("t1", topologytest.LoadPoi, 1)
	normal.Status, normal.RobotID, normal.Index = router.TaskInProgress, "low", 0
	swap := d.NewSwapTask("low", topologytest.ChargerPoi, 0)
	robots = append(robots, low)
	tasks = append(tasks, normal, swap)

	plan, err := d.GetPlanAllFreeRobots(robots, tasks, 0)
	require.NoError(t, err)
	require.Contains(t, plan, "low")
	assert.Equal(t, "t1", plan["low"].TaskID)
	assert.Equal(t, router.TaskInProgress, normal.Status)
	assert.Equal(t, router.TaskToDo, swap.Status)
}
