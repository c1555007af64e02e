package router

import (
	"errors"
	"fmt"

	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/topology"
)

var (
	// 任务引用的POI不在图中或类型不符
	ErrPlanning = errors.New("planning error")
)

type PlanningError struct {
	PoiID  string
	Op     string
	Detail string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning error [%s] poi %s: %s", e.Op, e.PoiID, e.Detail)
}

func (e *PlanningError) Unwrap() error {
	return ErrPlanning
}

// poiType为空时不检查POI类型
func (r *Router) poi(poiID string, poiType topology.Role, op string) (*compiler.PoiNodes, error) {
	p, ok := r.g.Poi(poiID)
	if !ok {
		return nil, &PlanningError{PoiID: poiID, Op: op, Detail: "not found in graph"}
	}
	if poiType != "" && p.Role != poiType {
		return nil, &PlanningError{PoiID: poiID, Op: op, Detail: fmt.Sprintf("is %s, not %s", p.Role, poiType)}
	}
	return p, nil
}

func wrongSection(p *compiler.PoiNodes, op string) error {
	return &PlanningError{PoiID: p.PoiID, Op: op, Detail: fmt.Sprintf("%s (%s) has no such step", p.Role, p.Section)}
}

// goto行为的终点：停靠点入口或noChanges节点
func (r *Router) GetEndGoToNode(poiID string, poiType topology.Role) (string, error) {
	p, err := r.poi(poiID, poiType, "goto")
	if err != nil {
		return "", err
	}
	switch p.Section {
	case topology.SectionDockWaitUndock:
		return p.Dock, nil
	case topology.SectionWaitPOI:
		return p.Wait, nil
	default:
		return p.Node, nil
	}
}

func (r *Router) GetEndDockingNode(poiID string, poiType topology.Role) (string, error) {
	p, err := r.poi(poiID, poiType, "dock")
	if err != nil {
		return "", err
	}
	if p.Section != topology.SectionDockWaitUndock {
		return "", wrongSection(p, "dock")
	}
	return p.Wait, nil
}

func (r *Router) GetEndWaitNode(poiID string, poiType topology.Role) (string, error) {
	p, err := r.poi(poiID, poiType, "wait")
	if err != nil {
		return "", err
	}
	switch p.Section {
	case topology.SectionDockWaitUndock:
		return p.Undock, nil
	case topology.SectionWaitPOI:
		return p.End, nil
	default:
		return "", wrongSection(p, "wait")
	}
}

func (r *Router) GetEndUndockingNode(poiID string, poiType topology.Role) (string, error) {
	p, err := r.poi(poiID, poiType, "undock")
	if err != nil {
		return "", err
	}
	if p.Section != topology.SectionDockWaitUndock {
		return "", wrongSection(p, "undock")
	}
	return p.End, nil
}

// 行为完成时机器人所在的节点
func (r *Router) GetEndNode(b compiler.Behaviour, poiID string) (string, error) {
	switch b {
	case compiler.BehaviourGoto:
		return r.GetEndGoToNode(poiID, "")
	case compiler.BehaviourDock:
		return r.GetEndDockingNode(poiID, "")
	case compiler.BehaviourWait:
		return r.GetEndWaitNode(poiID, "")
	case compiler.BehaviourBatEx:
		return r.GetEndWaitNode(poiID, topology.RoleCharger)
	case compiler.BehaviourUndock:
		return r.GetEndUndockingNode(poiID, "")
	default:
		return "", &PlanningError{PoiID: poiID, Op: string(b), Detail: "unknown behaviour"}
	}
}

// 机器人所在节点：当前边的终点，不在边上时为所在POI的出口，未知时为空
func (r *Router) RobotNode(robot *Robot) string {
	if robot.Edge != nil {
		return robot.Edge.To
	}
	if robot.PoiID == "" || robot.PoiID == topology.NoPoi {
		return ""
	}
	p, ok := r.g.Poi(robot.PoiID)
	if !ok {
		return ""
	}
	if p.End != "" {
		return p.End
	}
	return p.Node
}
