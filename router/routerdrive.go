package router

import (
	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/router/algo"
	"github.com/samber/lo"
)

// 最短路经过的节点id，不可达时返回nil
func (r *Router) GetPath(from, to string) []string {
	items := r.shortestPath(from, to)
	return lo.Map(items, func(item algo.PathItem[*compiler.Node, *compiler.Edge], _ int) string {
		return item.NodeAttr.ID
	})
}

// 最短路经过的边
func (r *Router) GetPathEdges(from, to string) []*compiler.Edge {
	items := r.shortestPath(from, to)
	if len(items) < 2 {
		return nil
	}
	return lo.Map(items[:len(items)-1], func(item algo.PathItem[*compiler.Node, *compiler.Edge], _ int) *compiler.Edge {
		return item.EdgeAttr
	})
}

// 最短路用时，不可达时返回INF
func (r *Router) GetPathLength(from, to string) float64 {
	start, ok1 := r.nodeIds[from]
	end, ok2 := r.nodeIds[to]
	if !ok1 || !ok2 {
		return algo.INF
	}
	_, cost := r.graph.ShortestPath(start, end)
	return cost
}

func (r *Router) shortestPath(from, to string) []algo.PathItem[*compiler.Node, *compiler.Edge] {
	start, ok1 := r.nodeIds[from]
	end, ok2 := r.nodeIds[to]
	if !ok1 || !ok2 {
		return nil
	}
	path, _ := r.graph.ShortestPath(start, end)
	return path
}

// 与节点相连的POI组
func (r *Router) poiGroups(node string) []int {
	edges := append(append([]*compiler.Edge{}, r.g.InEdges(node)...), r.g.OutEdges(node)...)
	groups := lo.FilterMap(edges, func(e *compiler.Edge, _ int) (int, bool) {
		return e.Group, e.Group != compiler.NoGroup && r.g.GroupKind(e.Group) == compiler.GroupPoi
	})
	return lo.Uniq(groups)
}

// 将除目标POI（以及机器人当前所在POI）外所有POI组的边权置为INF，避免途经其他POI
func (r *Router) BlockOtherPois(robotNode, targetNode string) {
	allowed := lo.Associate(append(r.poiGroups(robotNode), r.poiGroups(targetNode)...), func(g int) (int, bool) {
		return g, true
	})
	for _, group := range r.g.Groups() {
		if r.g.GroupKind(group) != compiler.GroupPoi || allowed[group] {
			continue
		}
		for _, e := range r.g.GroupEdges(group) {
			if err := r.graph.SetEdgeLength(r.nodeIds[e.From], r.nodeIds[e.To], algo.INF); err != nil {
				log.Errorf("block edge %d: %v", e.ID, err)
			}
		}
	}
}

// 恢复所有边权
func (r *Router) UnblockAll() {
	r.graph.ResetAll()
}
