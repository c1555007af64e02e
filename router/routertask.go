package router

import (
	"fmt"
	"math"

	"github.com/fleetgrid/routing/compiler"
)

// 任务第i步行为的终点
func (r *Router) StepNode(t *Task, i int) (string, error) {
	return r.GetEndNode(t.Steps[i].Behaviour, t.PoiAt(i))
}

// 从node出发完成任务剩余行为所需的行驶用时与停靠用时，每一步与实际规划一样绕开其他POI
func (r *Router) TaskTravelStandsTime(node string, t *Task) (drive, stand float64, err error) {
	cur := node
	for i := t.CurrentIndex(); i < len(t.Steps); i++ {
		next, err := r.StepNode(t, i)
		if err != nil {
			return 0, 0, err
		}
		r.BlockOtherPois(cur, next)
		cost := r.GetPathLength(cur, next)
		r.UnblockAll()
		if math.IsInf(cost, 1) {
			return 0, 0, &PlanningError{
				PoiID:  t.PoiAt(i),
				Op:     "travel",
				Detail: fmt.Sprintf("task %s step %d unreachable from %s", t.ID, i, cur),
			}
		}
		if t.Steps[i].Behaviour == compiler.BehaviourGoto {
			drive += cost
		} else {
			stand += cost
		}
		cur = next
	}
	return drive, stand, nil
}

// 在普通任务与换电任务中选择：换电任务到期，
// 或当前电量/完成普通任务后的电量低于临界值时选择换电任务
func (r *Router) SelectNextTask(normal, swap *Task, robot *Robot, now float64) (*Task, error) {
	if swap == nil {
		return normal, nil
	}
	critical := robot.Battery.Critical(r.cfg.Dispatch.CriticalBatteryLevel)
	if robot.Battery.Capacity < critical {
		return swap, nil
	}
	if swap.StartTime <= now {
		return swap, nil
	}
	if normal == nil {
		return nil, nil
	}
	node := r.RobotNode(robot)
	if node == "" {
		return normal, nil
	}
	drive, stand, err := r.TaskTravelStandsTime(node, normal)
	if err != nil {
		return nil, err
	}
	if robot.Battery.Projected(drive, stand) < critical {
		log.Infof("robot %s battery %.2f would drop below %.2f after task %s, swap first",
			robot.ID, robot.Battery.Capacity, critical, normal.ID)
		return swap, nil
	}
	return normal, nil
}
