package dispatch

import (
	"errors"
	"sort"
	"sync"

	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/router"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "dispatch")

// 单轮规划中一台机器人的结果
type PlanEntry struct {
	TaskID string `json:"task_id"`
	// nil表示本轮原地等待
	NextEdge *router.EdgeRef `json:"next_edge"`
	// 下一条边是否是当前行为的最后一条边，NextEdge为nil时为nil
	EndBeh *bool `json:"end_beh"`
}

type Plan map[string]PlanEntry

type Assignment struct {
	RobotID string
	Task    *router.Task // nil表示没有分到普通任务
}

// 调度器，每轮规划在同一把锁内完成
type Dispatcher struct {
	mu  sync.Mutex
	r   *router.Router
	cfg config.DispatchConfig

	// 本轮快照
	now        float64
	robots     map[string]*router.Robot
	robotIds   []string
	tasks      []*router.Task
	unassigned []*router.Task
	swaps      map[string]*router.Task // robot id -> 待执行的换电任务
	unanalyzed []*router.Task
	endBeh     map[string]bool
	errs       []error
}

func New(r *router.Router) *Dispatcher {
	return &Dispatcher{
		r:   r,
		cfg: r.Config().Dispatch,
	}
}

func (d *Dispatcher) Router() *router.Router {
	return d.r
}

// 载入本轮的机器人与任务快照，清空上一轮的占用、预定与封锁
func (d *Dispatcher) Load(robots []*router.Robot, tasks []*router.Task, now float64) {
	d.now = now
	d.robots = make(map[string]*router.Robot, len(robots))
	d.robotIds = make([]string, 0, len(robots))
	for _, robot := range robots {
		robot.Task, robot.NextEdge, robot.BehaviourDone = nil, nil, false
		d.robots[robot.ID] = robot
		d.robotIds = append(d.robotIds, robot.ID)
	}
	d.tasks = tasks
	d.unassigned = make([]*router.Task, 0)
	d.swaps = make(map[string]*router.Task)
	d.unanalyzed = make([]*router.Task, 0)
	d.endBeh = make(map[string]bool)
	d.errs = nil
	for _, t := range tasks {
		switch {
		case t.Status == router.TaskDone, t.Status == router.TaskInProgress:
		case t.IsSwap(d.cfg.SwapTaskPrefix):
			if t.RobotID == "" {
				log.Warnf("swap task %s has no robot", t.ID)
				d.unanalyzed = append(d.unanalyzed, t)
				continue
			}
			if old, ok := d.swaps[t.RobotID]; !ok || t.StartTime < old.StartTime {
				d.swaps[t.RobotID] = t
			}
		default:
			t.RobotID = ""
			d.unassigned = append(d.unassigned, t)
		}
	}
	d.r.SetOccupancy(robots)
	d.r.ResetFutureEdges()
	d.r.UnblockAll()
}

// 未能匹配到机器人的进行中任务
func (d *Dispatcher) Unanalyzed() []*router.Task {
	return append([]*router.Task{}, d.unanalyzed...)
}

// 因规划错误暂停的任务进入unanalyzed，机器人不出现在本轮结果中
func (d *Dispatcher) park(robot *router.Robot, t *router.Task, err error) {
	log.Warnf("park task %s: %v", t.ID, err)
	d.errs = append(d.errs, err)
	d.unanalyzed = append(d.unanalyzed, t)
	if robot != nil && robot.Task == t {
		robot.Task = nil
		robot.NextEdge = nil
	}
}

func (d *Dispatcher) freeRobots() []string {
	return lo.Filter(d.robotIds, func(id string, _ int) bool {
		robot := d.robots[id]
		return robot.Free && robot.PlanningOn && robot.Task == nil && d.r.RobotNode(robot) != ""
	})
}

func (d *Dispatcher) entry(robot *router.Robot) PlanEntry {
	e := PlanEntry{TaskID: robot.Task.ID, NextEdge: robot.NextEdge}
	if robot.NextEdge != nil {
		endBeh := d.endBeh[robot.ID]
		e.EndBeh = &endBeh
	}
	return e
}

func (d *Dispatcher) plan() Plan {
	plan := make(Plan)
	for _, id := range d.robotIds {
		if robot := d.robots[id]; robot.Task != nil {
			plan[id] = d.entry(robot)
		}
	}
	return plan
}

// 为进行中的任务推进一步，并把任务分配给空闲机器人；堵住已满POI的空闲机器人优先分配
func (d *Dispatcher) assignFree(free []string) {
	blocking := lo.Associate(d.GetRobotsIDBlockingUsedPoi(), func(id string) (string, bool) {
		return id, true
	})
	sort.SliceStable(free, func(i, j int) bool {
		return blocking[free[i]] && !blocking[free[j]]
	})
	tasks := d.GetFreeTaskToAssign(len(free))
	assignments := d.AssignTasksToRobots(tasks, free)
	for _, id := range free[len(assignments):] {
		assignments = append(assignments, Assignment{RobotID: id})
	}
	d.SetTaskAssignedToRobots(assignments)
}

// 所有机器人本轮的规划结果，规划错误合并后与结果一起返回
func (d *Dispatcher) GetPlanAllFreeRobots(robots []*router.Robot, tasks []*router.Task, now float64) (Plan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Load(robots, tasks, now)
	d.SetTasksDoingByRobots()
	d.assignFree(d.freeRobots())
	plan := d.plan()
	log.Debugf("tick %.1f: %d robots, %d tasks, %d planned", now, len(robots), len(tasks), len(plan))
	return plan, errors.Join(d.errs...)
}

// 单台机器人的规划结果，没有结果时返回nil
func (d *Dispatcher) GetPlanSelectedRobot(robotID string, robots []*router.Robot, tasks []*router.Task, now float64) (*PlanEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Load(robots, tasks, now)
	d.SetTasksDoingByRobots()
	if lo.Contains(d.freeRobots(), robotID) {
		d.assignFree([]string{robotID})
	}
	robot, ok := d.robots[robotID]
	if !ok || robot.Task == nil {
		return nil, errors.Join(d.errs...)
	}
	e := d.entry(robot)
	return &e, errors.Join(d.errs...)
}
