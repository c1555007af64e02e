package compiler

import (
	"sort"

	"github.com/paulmach/orb/geojson"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// 不在最大强连通分量中的节点，机器人进入后无法返回或无法到达这些节点
func (g *Graph) Unreachable() []string {
	if len(g.order) == 0 {
		return nil
	}
	dg := simple.NewDirectedGraph()
	idx := make(map[string]int64, len(g.order))
	for i, id := range g.order {
		idx[id] = int64(i)
		dg.AddNode(simple.Node(i))
	}
	for _, e := range g.edges {
		if !e.Usable() || e.From == e.To {
			continue
		}
		dg.SetEdge(simple.Edge{F: simple.Node(idx[e.From]), T: simple.Node(idx[e.To])})
	}
	largest := lo.MaxBy(topo.TarjanSCC(dg), func(a, b []graph.Node) bool {
		return len(a) > len(b)
	})
	inside := make(map[int64]bool, len(largest))
	for _, n := range largest {
		inside[n.ID()] = true
	}
	ret := lo.Filter(g.order, func(id string, _ int) bool {
		return !inside[idx[id]]
	})
	sort.Strings(ret)
	return ret
}

// 导出为GeoJSON，节点为Point，goto边为车道Polygon
func (g *Graph) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range g.Nodes() {
		f := geojson.NewFeature(n.Pos)
		f.ID = n.ID
		z, w := n.Quaternion()
		f.Properties["kind"] = "node"
		f.Properties["type"] = string(n.Type)
		f.Properties["base"] = n.Base
		f.Properties["role"] = string(n.Role)
		f.Properties["poi_id"] = n.PoiID
		f.Properties["yaw"] = n.Yaw
		f.Properties["orientation"] = []float64{0, 0, z, w}
		fc.Append(f)
	}
	for _, e := range g.edges {
		if len(e.Corridor) == 0 {
			continue
		}
		f := geojson.NewFeature(e.Corridor)
		f.ID = e.ID
		f.Properties["kind"] = "edge"
		f.Properties["from"] = e.From
		f.Properties["to"] = e.To
		f.Properties["behaviour"] = string(e.Behaviour)
		f.Properties["group"] = e.Group
		f.Properties["connected_poi"] = e.ConnectedPoi
		f.Properties["weight"] = e.Weight
		f.Properties["max_robots"] = e.MaxRobots
		fc.Append(f)
	}
	return fc
}
