package topology

import (
	"fmt"
)

type validator struct {
	t   *Topology
	in  map[string][]*ReducedEdge
	out map[string][]*ReducedEdge
}

// 按节点角色检查合并后的拓扑结构，出错时返回第一个违反的规则
// 检查顺序：POI, parking, queue, waiting, departure, waiting-departure
func Validate(t *Topology, reduced []*ReducedEdge) error {
	v := &validator{
		t:   t,
		in:  make(map[string][]*ReducedEdge),
		out: make(map[string][]*ReducedEdge),
	}
	for _, r := range reduced {
		v.out[r.Start()] = append(v.out[r.Start()], r)
		v.in[r.End()] = append(v.in[r.End()], r)
	}
	if err := v.checkPoiIDs(); err != nil {
		return err
	}
	categories := []struct {
		match func(*BaseNode) bool
		check func(*BaseNode) error
	}{
		{func(n *BaseNode) bool { return n.Role.IsStand() }, v.checkStand},
		{func(n *BaseNode) bool { return n.Role == RoleParking }, v.checkParking},
		{func(n *BaseNode) bool { return n.Role == RoleQueue }, v.checkQueue},
		{func(n *BaseNode) bool { return n.Role == RoleWaiting }, v.checkWaiting},
		{func(n *BaseNode) bool { return n.Role == RoleDeparture }, v.checkDeparture},
		{func(n *BaseNode) bool { return n.Role == RoleWaitingDeparture }, v.checkWaitingDeparture},
	}
	ids := t.NodeIDs()
	for _, c := range categories {
		for _, id := range ids {
			n := t.Nodes[id]
			if !c.match(n) {
				continue
			}
			if err := c.check(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func fail(rule Rule, node string, format string, args ...any) error {
	return &TopologyError{Rule: rule, NodeID: node, Detail: fmt.Sprintf(format, args...)}
}

func (v *validator) role(id string) Role {
	return v.t.Nodes[id].Role
}

func (v *validator) checkPoiIDs() error {
	owners := make(map[string]string)
	for _, id := range v.t.NodeIDs() {
		n := v.t.Nodes[id]
		if n.Role.IsStand() && !n.HasPoi() {
			return fail(RuleMissingPoi, id, "%s node has no poi id", n.Role)
		}
		if !n.HasPoi() {
			continue
		}
		if other, ok := owners[n.PoiID]; ok {
			return fail(RuleDuplicatePoi, id, "poi %s already used by node %s", n.PoiID, other)
		}
		owners[n.PoiID] = id
	}
	return nil
}

func (v *validator) checkDegree(n *BaseNode, wantIn, wantOut int) error {
	if got := len(v.in[n.ID]); got != wantIn {
		return fail(RuleInDegree, n.ID, "%s node needs %d incoming edges, got %d", n.Role, wantIn, got)
	}
	if got := len(v.out[n.ID]); got != wantOut {
		return fail(RuleOutDegree, n.ID, "%s node needs %d outgoing edges, got %d", n.Role, wantOut, got)
	}
	return nil
}

func (v *validator) checkWayType(n *BaseNode, r *ReducedEdge, want ...WayType) error {
	for _, w := range want {
		if r.WayType == w {
			return nil
		}
	}
	return fail(RuleWayType, n.ID, "%s must be %v, got %s", r, want, r.WayType)
}

// 所有相连的边都必须是给定的通行类型
func (v *validator) checkIncident(n *BaseNode, want ...WayType) error {
	for _, r := range append(append([]*ReducedEdge{}, v.in[n.ID]...), v.out[n.ID]...) {
		if err := v.checkWayType(n, r, want...); err != nil {
			return err
		}
	}
	return nil
}

// 单进单出且前驱后继角色固定的节点，先查通行类型：双向边会使出入度翻倍
func (v *validator) checkPassage(n *BaseNode, pred, succ func(Role) bool, patternDesc string, way WayType) error {
	if err := v.checkIncident(n, way); err != nil {
		return err
	}
	if err := v.checkDegree(n, 1, 1); err != nil {
		return err
	}
	in, out := v.in[n.ID][0], v.out[n.ID][0]
	if !pred(v.role(in.Start())) || !succ(v.role(out.End())) {
		return fail(RuleNeighborRole, n.ID, "expected %s, got %s->%s->%s",
			patternDesc, v.role(in.Start()), n.Role, v.role(out.End()))
	}
	return nil
}

func isIntersection(r Role) bool {
	return r == RoleIntersection
}

func isStand(r Role) bool {
	return r.IsStand()
}

func (v *validator) checkStand(n *BaseNode) error {
	if err := v.checkIncident(n, OneWay, NarrowTwoWay); err != nil {
		return err
	}
	incident := append(append([]*ReducedEdge{}, v.in[n.ID]...), v.out[n.ID]...)
	for _, r := range incident[min(1, len(incident)):] {
		if r.WayType != incident[0].WayType {
			return fail(RuleWayType, n.ID, "approach %s and exit %s differ", incident[0].WayType, r.WayType)
		}
	}
	if err := v.checkDegree(n, 1, 1); err != nil {
		return err
	}
	in, out := v.in[n.ID][0], v.out[n.ID][0]
	pred, succ := v.role(in.Start()), v.role(out.End())
	switch {
	case pred == RoleWaiting && succ == RoleDeparture:
		return v.checkWayType(n, in, OneWay)
	case pred == RoleWaitingDeparture && succ == RoleWaitingDeparture:
		if in.Start() != out.End() {
			return fail(RulePoiLink, n.ID, "enters from %s but leaves to %s", in.Start(), out.End())
		}
		return v.checkWayType(n, in, NarrowTwoWay)
	case pred == RoleIntersection && succ == RoleIntersection:
		return nil
	default:
		return fail(RuleNeighborRole, n.ID,
			"expected waiting->POI->departure, waiting-departure->POI->waiting-departure or intersection->POI->intersection, got %s->%s->%s",
			pred, n.Role, succ)
	}
}

func (v *validator) checkParking(n *BaseNode) error {
	return v.checkPassage(n, isIntersection, isIntersection, "intersection->parking->intersection", NarrowTwoWay)
}

func (v *validator) checkQueue(n *BaseNode) error {
	return v.checkPassage(n, isIntersection, isIntersection, "intersection->queue->intersection", OneWay)
}

func (v *validator) checkWaiting(n *BaseNode) error {
	return v.checkPassage(n, isIntersection, isStand, "intersection->waiting->POI", OneWay)
}

func (v *validator) checkDeparture(n *BaseNode) error {
	return v.checkPassage(n, isStand, isIntersection, "POI->departure->intersection", OneWay)
}

// 两进两出：一对连接路口(twoWay)，一对连接POI(narrowTwoWay)
// POI一侧的配对已由POI节点自身的检查保证
func (v *validator) checkWaitingDeparture(n *BaseNode) error {
	if err := v.checkDegree(n, 2, 2); err != nil {
		return err
	}
	split := func(edges []*ReducedEdge, neighbor func(*ReducedEdge) string) (cross, poi *ReducedEdge, err error) {
		for _, r := range edges {
			switch role := v.role(neighbor(r)); {
			case role == RoleIntersection && cross == nil:
				cross = r
			case role.IsStand() && poi == nil:
				poi = r
			default:
				return nil, nil, fail(RuleNeighborRole, n.ID,
					"waiting-departure needs one intersection and one POI neighbour per direction, got %s", role)
			}
		}
		return cross, poi, nil
	}
	crossIn, poiIn, err := split(v.in[n.ID], (*ReducedEdge).Start)
	if err != nil {
		return err
	}
	crossOut, poiOut, err := split(v.out[n.ID], (*ReducedEdge).End)
	if err != nil {
		return err
	}
	if crossIn.Start() != crossOut.End() {
		return fail(RuleNeighborRole, n.ID, "intersection pair differs: %s and %s", crossIn.Start(), crossOut.End())
	}
	for _, r := range []*ReducedEdge{crossIn, crossOut} {
		if err := v.checkWayType(n, r, TwoWay); err != nil {
			return err
		}
	}
	for _, r := range []*ReducedEdge{poiIn, poiOut} {
		if err := v.checkWayType(n, r, NarrowTwoWay); err != nil {
			return err
		}
	}
	return nil
}
