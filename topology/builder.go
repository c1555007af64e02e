package topology

import "github.com/paulmach/orb"

// 以代码方式构造拓扑，用于测试和性能测试
type Builder struct {
	t *Topology
}

func NewBuilder() *Builder {
	return &Builder{t: &Topology{
		Nodes: make(map[string]*BaseNode),
		Edges: make(map[string]*BaseEdge),
		Pois:  make([]*Poi, 0),
	}}
}

func (b *Builder) Node(id string, x, y float64, role Role) *Builder {
	b.t.Nodes[id] = &BaseNode{ID: id, Pos: orb.Point{x, y}, Role: role, PoiID: NoPoi}
	return b
}

// 带POI的节点，同时登记POI表，位姿取节点位置
func (b *Builder) PoiNode(id, poiID string, x, y, yaw float64, role Role) *Builder {
	b.t.Nodes[id] = &BaseNode{ID: id, Pos: orb.Point{x, y}, Role: role, PoiID: poiID}
	b.t.Pois = append(b.t.Pois, &Poi{ID: poiID, Pose: Pose{Pos: orb.Point{x, y}, Yaw: yaw}, Role: role})
	return b
}

func (b *Builder) Edge(id, start, end string, way WayType) *Builder {
	b.t.Edges[id] = &BaseEdge{ID: id, Start: start, End: end, WayType: way}
	return b
}

func (b *Builder) ClosedEdge(id, start, end string, way WayType) *Builder {
	inactive := false
	b.t.Edges[id] = &BaseEdge{ID: id, Start: start, End: end, WayType: way, Active: &inactive}
	return b
}

func (b *Builder) Build() *Topology {
	return b.t
}
