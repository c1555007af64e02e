package dispatch

import (
	"sort"

	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/router"
	"github.com/fleetgrid/routing/topology"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// 机器人当前占用的POI：执行中任务的当前目标，无任务时为所在POI
func (d *Dispatcher) usedPoi(robot *router.Robot) string {
	if robot.Task != nil {
		return robot.Task.PoiAt(robot.Task.CurrentIndex())
	}
	if robot.Edge == nil && robot.PoiID != "" {
		return robot.PoiID
	}
	return topology.NoPoi
}

// 各POI已占用的机器人数
func (d *Dispatcher) GetRobotsUsingPois() map[string]int {
	ret := make(map[string]int)
	for _, id := range d.robotIds {
		if poi := d.usedPoi(d.robots[id]); poi != topology.NoPoi {
			ret[poi]++
		}
	}
	return ret
}

// 各POI剩余可分配数量
func (d *Dispatcher) GetFreeSlotsInPois() map[string]int {
	using := d.GetRobotsUsingPois()
	return lo.MapValues(d.r.GetMaxAllowedRobotsUsingPois(), func(allowed int, poi string) int {
		return max(allowed-using[poi], 0)
	})
}

// 停在已满POI内或其驶入车道上、且没有去往其他POI的任务的机器人
func (d *Dispatcher) GetRobotsIDBlockingUsedPoi() []string {
	slots := d.GetFreeSlotsInPois()
	full := func(poi string) bool {
		s, ok := slots[poi]
		return ok && s == 0
	}
	ret := make([]string, 0)
	for _, id := range d.robotIds {
		robot := d.robots[id]
		poi := topology.NoPoi
		switch {
		case robot.Edge != nil:
			if e, ok := d.r.Edge(*robot.Edge); ok {
				poi = e.ConnectedPoi
			}
		case robot.PoiID != "":
			poi = robot.PoiID
		}
		if poi == topology.NoPoi || !full(poi) {
			continue
		}
		if robot.Task != nil && robot.Task.TargetPoi() != poi {
			continue
		}
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

func (d *Dispatcher) less(a, b *router.Task) bool {
	if d.cfg.TaskOrder == config.OrderByStartTime {
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	return a.ID < b.ID
}

// 最多n个可分配的待办任务，目标POI已满的任务跳过但保留在队列中
func (d *Dispatcher) GetFreeTaskToAssign(n int) []*router.Task {
	slots := d.GetFreeSlotsInPois()
	candidates := lo.Filter(d.unassigned, func(t *router.Task, _ int) bool {
		return t.StartTime <= d.now
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return d.less(candidates[i], candidates[j])
	})
	ret := make([]*router.Task, 0, n)
	for _, t := range candidates {
		if len(ret) >= n {
			break
		}
		poi := t.TargetPoi()
		if !d.r.HasPoiID(poi) {
			d.unassigned = lo.Without(d.unassigned, t)
			d.park(nil, t, &router.PlanningError{PoiID: poi, Op: "assign", Detail: "task " + t.ID + " targets unknown poi"})
			continue
		}
		if slots[poi] <= 0 {
			continue
		}
		slots[poi]--
		ret = append(ret, t)
	}
	return ret
}

// 按位置一一配对，配对的任务移出待分配队列
func (d *Dispatcher) AssignTasksToRobots(tasks []*router.Task, robotIds []string) []Assignment {
	n := min(len(tasks), len(robotIds))
	ret := make([]Assignment, n)
	for i := 0; i < n; i++ {
		tasks[i].RobotID = robotIds[i]
		ret[i] = Assignment{RobotID: robotIds[i], Task: tasks[i]}
	}
	d.unassigned = lo.Without(d.unassigned, tasks[:n]...)
	return ret
}

// 决定每台机器人本轮执行普通任务还是换电任务，被替换下的普通任务回到待分配队列；
// 充电POI已满时换电任务推迟到之后的轮次
func (d *Dispatcher) SetTaskAssignedToRobots(assignments []Assignment) {
	slots := d.GetFreeSlotsInPois()
	for _, a := range assignments {
		if a.Task != nil {
			slots[a.Task.TargetPoi()]--
		}
	}
	for _, a := range assignments {
		robot := d.robots[a.RobotID]
		chosen, err := d.r.SelectNextTask(a.Task, d.swaps[a.RobotID], robot, d.now)
		if err != nil {
			if a.Task != nil {
				a.Task.RobotID = ""
				d.unassigned = lo.Without(d.unassigned, a.Task)
				d.park(nil, a.Task, err)
			}
			continue
		}
		if a.Task != nil && chosen != a.Task {
			slots[a.Task.TargetPoi()]++
			a.Task.RobotID = ""
			d.unassigned = append(d.unassigned, a.Task)
		}
		if chosen == nil {
			continue
		}
		if chosen != a.Task {
			poi := chosen.TargetPoi()
			if slots[poi] <= 0 {
				log.Infof("robot %s: charger %s is full, swap task %s deferred", robot.ID, poi, chosen.ID)
				continue
			}
			slots[poi]--
		}
		log.Debugf("assign task %s to robot %s", chosen.ID, robot.ID)
		d.start(robot, chosen)
	}
}

// 新建换电任务：前往充电POI，dock -> bat_ex -> undock
func (d *Dispatcher) NewSwapTask(robotID, chargerPoi string, start float64) *router.Task {
	return &router.Task{
		ID: d.cfg.SwapTaskPrefix + robotID + "_" + uuid.NewString(),
		Steps: []router.Step{
			{Behaviour: compiler.BehaviourGoto, PoiID: chargerPoi},
			{Behaviour: compiler.BehaviourDock},
			{Behaviour: compiler.BehaviourBatEx},
			{Behaviour: compiler.BehaviourUndock},
		},
		Index:     -1,
		Status:    router.TaskToDo,
		RobotID:   robotID,
		StartTime: start,
	}
}
