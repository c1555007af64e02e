package dispatch

import (
	"github.com/fleetgrid/routing/router"
)

// 任务第一个未完成行为对应的节点
func (d *Dispatcher) GetUndoneBehaviourNode(t *router.Task) (string, error) {
	if t.Finished() {
		return "", &router.PlanningError{Op: "behaviour", Detail: "task " + t.ID + " has no undone behaviour"}
	}
	return d.r.StepNode(t, t.CurrentIndex())
}

// 机器人到达当前行为的终点且剩余时间为0时，当前行为完成，任务前进一步
// 返回false表示任务已结束或被暂停
func (d *Dispatcher) advance(robot *router.Robot) bool {
	t := robot.Task
	if t.Index < 0 {
		t.Index = 0
	}
	target, err := d.GetUndoneBehaviourNode(t)
	if err != nil {
		d.park(robot, t, err)
		return false
	}
	if d.r.RobotNode(robot) != target || robot.TimeRemaining > 0 {
		return true
	}
	robot.BehaviourDone = true
	t.Index++
	if t.Finished() {
		log.Infof("robot %s finished task %s", robot.ID, t.ID)
		t.Status = router.TaskDone
		robot.Task = nil
		robot.Free = true
		return false
	}
	return true
}

// 把进行中的任务挂到对应机器人上，推进一步并计算下一条边
func (d *Dispatcher) SetTasksDoingByRobots() {
	doing := make([]*router.Robot, 0)
	for _, t := range d.tasks {
		if t.Status != router.TaskInProgress {
			continue
		}
		robot, ok := d.robots[t.RobotID]
		if !ok || robot.Task != nil {
			log.Warnf("task %s in progress on unknown or busy robot %q", t.ID, t.RobotID)
			d.unanalyzed = append(d.unanalyzed, t)
			continue
		}
		robot.Task = t
		robot.Free = false
		doing = append(doing, robot)
	}
	// 所有进行中的任务挂载后再计算POI占用
	for _, robot := range doing {
		t := robot.Task
		if !t.IsSwap(d.cfg.SwapTaskPrefix) && !d.keepNormalTask(robot, t) {
			continue
		}
		if d.advance(robot) {
			d.SetTaskEdge(robot.ID)
		}
	}
}

// 电量不足时换电任务抢占进行中的普通任务，普通任务回到待分配队列；充电POI已满时继续执行普通任务
func (d *Dispatcher) keepNormalTask(robot *router.Robot, t *router.Task) bool {
	swap, ok := d.swaps[robot.ID]
	if !ok {
		return true
	}
	chosen, err := d.r.SelectNextTask(t, swap, robot, d.now)
	if err != nil {
		d.park(robot, t, err)
		return false
	}
	if chosen == t {
		return true
	}
	if d.GetFreeSlotsInPois()[swap.TargetPoi()] <= 0 {
		log.Infof("robot %s: charger %s is full, keep task %s", robot.ID, swap.TargetPoi(), t.ID)
		return true
	}
	log.Infof("robot %s: swap task %s preempts task %s", robot.ID, swap.ID, t.ID)
	t.Status, t.RobotID, t.Index = router.TaskToDo, "", -1
	d.unassigned = append(d.unassigned, t)
	robot.Task = nil
	d.start(robot, swap)
	return false
}

func (d *Dispatcher) start(robot *router.Robot, t *router.Task) {
	if t == d.swaps[robot.ID] {
		delete(d.swaps, robot.ID)
	}
	t.RobotID = robot.ID
	t.Status = router.TaskInProgress
	robot.Task = t
	robot.Free = false
	if d.advance(robot) {
		d.SetTaskEdge(robot.ID)
	}
}

// 计算机器人的下一条边：沿最短路前进一条边，目标边满载、路口被占用或反向窄路有车时原地等待
func (d *Dispatcher) SetTaskEdge(robotID string) *router.EdgeRef {
	robot := d.robots[robotID]
	robot.NextEdge = nil
	t := robot.Task
	if t == nil {
		return nil
	}
	node := d.r.RobotNode(robot)
	target, err := d.GetUndoneBehaviourNode(t)
	if err != nil {
		d.park(robot, t, err)
		return nil
	}
	if node == "" || node == target {
		return nil
	}
	d.r.BlockOtherPois(node, target)
	path := d.r.GetPath(node, target)
	d.r.UnblockAll()
	if len(path) < 2 {
		log.Debugf("robot %s: no path from %s to %s", robotID, node, target)
		return nil
	}
	ref := router.EdgeRef{From: path[0], To: path[1]}
	e, ok := d.r.Edge(ref)
	if !ok || !d.r.CanEnter(e, robotID) {
		return nil
	}
	d.r.SetRobotOnFutureEdge(ref, robotID)
	robot.NextEdge = &ref
	d.endBeh[robotID] = path[1] == target
	return &ref
}
