package router

import (
	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/router/algo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type heuristics struct {
	speed float64
}

// 直线距离按最高速度行驶的用时，不超过实际边权
func (h heuristics) HeuristicEuclidean(p1 orb.Point, p2 orb.Point) float64 {
	return planar.Distance(p1, p2) / h.speed
}

func (r *Router) buildSearchGraph() {
	graph := algo.NewSearchGraph[*compiler.Node, *compiler.Edge](heuristics{speed: r.cfg.Graph.RobotSpeed})
	for _, n := range r.g.Nodes() {
		r.nodeIds[n.ID] = graph.InitNode(n.Pos, n)
	}
	for _, e := range r.g.Edges() {
		w := algo.INF
		if e.Weight != nil {
			w = *e.Weight
		}
		if err := graph.InitEdge(r.nodeIds[e.From], r.nodeIds[e.To], w, e); err != nil {
			log.Panicf("init edge %d (%s->%s): %v", e.ID, e.From, e.To, err)
		}
	}
	r.graph = graph
	log.Infof("search graph built with %d nodes, %d edges", graph.NodeCount(), len(r.g.Edges()))
}
