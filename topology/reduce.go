package topology

import (
	"fmt"
	"strings"
)

// 由连续的normal节点串接而成的有向边
// Nodes[0]和Nodes[len-1]均不是normal节点
type ReducedEdge struct {
	ID      int
	Nodes   []string // 依次经过的base node
	Edges   []string // 依次经过的base edge，len(Edges) == len(Nodes)-1
	WayType WayType
	Active  bool
}

func (r *ReducedEdge) Start() string {
	return r.Nodes[0]
}

func (r *ReducedEdge) End() string {
	return r.Nodes[len(r.Nodes)-1]
}

// 首段base edge
func (r *ReducedEdge) FirstEdge() string {
	return r.Edges[0]
}

// 末段base edge
func (r *ReducedEdge) LastEdge() string {
	return r.Edges[len(r.Edges)-1]
}

// 起点之后的相邻节点
func (r *ReducedEdge) StartNeighbor() string {
	return r.Nodes[1]
}

// 终点之前的相邻节点
func (r *ReducedEdge) EndNeighbor() string {
	return r.Nodes[len(r.Nodes)-2]
}

func (r *ReducedEdge) String() string {
	return fmt.Sprintf("reduced(%d: %s)", r.ID, strings.Join(r.Nodes, "->"))
}

// 有向化的base edge
type directedEdge struct {
	source  string // 来源base edge id
	from    string
	to      string
	wayType WayType
	active  bool
}

// 将双向边复制为两条反向的有向边，单向边保持不变
func directed(t *Topology) ([]directedEdge, error) {
	ret := make([]directedEdge, 0, len(t.Edges)*2)
	for _, id := range t.EdgeIDs() {
		e := t.Edges[id]
		for _, n := range []string{e.Start, e.End} {
			if _, ok := t.Nodes[n]; !ok {
				return nil, &TopologyError{Rule: RuleUnknownNode, EdgeID: id, Detail: fmt.Sprintf("node %s not found", n)}
			}
		}
		ret = append(ret, directedEdge{source: id, from: e.Start, to: e.End, wayType: e.WayType, active: e.IsActive()})
		if e.WayType.Bidirectional() {
			ret = append(ret, directedEdge{source: id, from: e.End, to: e.Start, wayType: e.WayType, active: e.IsActive()})
		}
	}
	return ret, nil
}

// 合并经过normal节点的边链
func Reduce(t *Topology) ([]*ReducedEdge, error) {
	edges, err := directed(t)
	if err != nil {
		return nil, err
	}
	isNormal := func(id string) bool {
		return t.Nodes[id].Role == RoleNormal
	}
	chains := make([]*ReducedEdge, 0)
	open := make([]*ReducedEdge, 0)
	// 从normal节点出发、尚未接入链的边
	pending := make([]*directedEdge, 0)
	for i := range edges {
		d := &edges[i]
		if isNormal(d.from) {
			pending = append(pending, d)
			continue
		}
		r := &ReducedEdge{
			ID:      len(chains),
			Nodes:   []string{d.from, d.to},
			Edges:   []string{d.source},
			WayType: d.wayType,
			Active:  d.active,
		}
		chains = append(chains, r)
		if isNormal(d.to) {
			open = append(open, r)
		}
	}
	// 反复扫描，把normal节点出发的边接到以该节点结尾的开放链上
	for len(open) > 0 {
		progress := false
		stillOpen := make([]*ReducedEdge, 0, len(open))
		for _, r := range open {
			tail := r.End()
			next := -1
			for i, d := range pending {
				// 不能沿同一条base edge折返
				if d != nil && d.from == tail && d.source != r.LastEdge() {
					next = i
					break
				}
			}
			if next < 0 {
				stillOpen = append(stillOpen, r)
				continue
			}
			d := pending[next]
			pending[next] = nil
			if d.wayType != r.WayType {
				return nil, &TopologyError{
					Rule:   RuleMixedWayType,
					EdgeID: d.source,
					Detail: fmt.Sprintf("%s continues %s as %s", d.wayType, r, r.WayType),
				}
			}
			r.Nodes = append(r.Nodes, d.to)
			r.Edges = append(r.Edges, d.source)
			r.Active = r.Active && d.active
			progress = true
			if isNormal(d.to) {
				stillOpen = append(stillOpen, r)
			}
		}
		open = stillOpen
		if !progress && len(open) > 0 {
			return nil, &TopologyError{
				Rule:   RuleOrphanPath,
				NodeID: open[0].End(),
				Detail: fmt.Sprintf("%s cannot be closed", open[0]),
			}
		}
	}
	for _, d := range pending {
		if d != nil {
			return nil, &TopologyError{
				Rule:   RuleOrphanPath,
				NodeID: d.from,
				EdgeID: d.source,
				Detail: fmt.Sprintf("edge %s->%s is not reachable from any non-normal node", d.from, d.to),
			}
		}
	}
	return chains, nil
}
