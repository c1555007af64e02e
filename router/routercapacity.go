package router

import (
	"github.com/fleetgrid/routing/compiler"
	"github.com/samber/lo"
)

// 根据机器人当前所在的边重置各边上的机器人列表
func (r *Router) SetOccupancy(robots []*Robot) {
	for _, e := range r.g.Edges() {
		e.Robots = e.Robots[:0]
	}
	for _, robot := range robots {
		if robot.Edge == nil {
			continue
		}
		e, ok := r.Edge(*robot.Edge)
		if !ok {
			log.Warnf("robot %s is on unknown edge %s->%s", robot.ID, robot.Edge.From, robot.Edge.To)
			continue
		}
		e.Robots = append(e.Robots, robot.ID)
	}
}

func (r *Router) SetRobotOnFutureEdge(e EdgeRef, robotID string) {
	r.futureBlockedEdges[e] = append(r.futureBlockedEdges[e], robotID)
}

func (r *Router) GetRobotsOnFutureEdge(e EdgeRef) []string {
	return r.futureBlockedEdges[e]
}

// 每轮规划开始时清空预定
func (r *Router) ResetFutureEdges() {
	r.futureBlockedEdges = make(map[EdgeRef][]string)
}

// 每个POI允许同时使用的机器人数：组内各边maxRobots之和，至少为1
func (r *Router) GetMaxAllowedRobotsUsingPois() map[string]int {
	ret := make(map[string]int)
	for _, id := range r.g.PoiIDs() {
		p, _ := r.g.Poi(id)
		sum := lo.SumBy(r.g.GroupEdges(p.Group), func(e *compiler.Edge) int {
			if e.MaxRobots == nil {
				return 0
			}
			return *e.MaxRobots
		})
		ret[id] = max(sum, 1)
	}
	return ret
}

// 边所属组，未知边或不属于任何组时返回compiler.NoGroup
func (r *Router) GetGroupID(ref EdgeRef) int {
	e, ok := r.Edge(ref)
	if !ok {
		return compiler.NoGroup
	}
	return e.Group
}

func (r *Router) GetEdgesByGroup(group int) []*compiler.Edge {
	return r.g.GroupEdges(group)
}

// 路口内部边只有一个来源节点
func (r *Router) IsIntersectionEdge(ref EdgeRef) bool {
	e, ok := r.Edge(ref)
	return ok && e.Kind == compiler.EdgeIntersection && len(e.SourceNodes) == 1
}

func maxRobots(e *compiler.Edge) int {
	if e.MaxRobots == nil {
		return 1
	}
	return *e.MaxRobots
}

// 当前占用与本轮预定之和未达到上限
func (r *Router) EdgeHasRoom(e *compiler.Edge) bool {
	ref := EdgeRef{From: e.From, To: e.To}
	return len(e.Robots)+len(r.futureBlockedEdges[ref]) < maxRobots(e)
}

// 边上有除robotID外的机器人或预定
func (r *Router) busy(e *compiler.Edge, robotID string) bool {
	others := func(ids []string) bool {
		return lo.ContainsBy(ids, func(id string) bool { return id != robotID })
	}
	return others(e.Robots) || others(r.futureBlockedEdges[EdgeRef{From: e.From, To: e.To}])
}

// 路口内部同一时刻只允许一台机器人，窄路要求反向车道为空，POI停靠链同一时刻只允许一台机器人
func (r *Router) GroupIsFree(e *compiler.Edge, robotID string) bool {
	if e.Kind == compiler.EdgeIntersection {
		for _, s := range r.g.GroupEdges(e.Group) {
			if s.Kind == compiler.EdgeIntersection && s.SourceNodes[0] == e.SourceNodes[0] && r.busy(s, robotID) {
				return false
			}
		}
	}
	if twin, ok := r.g.Twin(e); ok && r.busy(twin, robotID) {
		return false
	}
	return !lo.ContainsBy(r.g.StandChain(e), func(s *compiler.Edge) bool {
		return r.busy(s, robotID)
	})
}

func (r *Router) CanEnter(e *compiler.Edge, robotID string) bool {
	return e.Usable() && r.GroupIsFree(e, robotID) && r.EdgeHasRoom(e)
}
