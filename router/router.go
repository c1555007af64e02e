package router

import (
	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/router/algo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "router")

// 调度时使用的规划图
type Router struct {
	// 1. 拓扑与编译后的调度图一致，点为展开节点（dock/wait/undock/end、路口in/out、noChanges）
	// 2. 边权为编译时的通行用时，nil权重的边以INF加入，不可通行
	// 3. 规划前通过BlockOtherPois将无关POI组的边权临时置为INF，规划后UnblockAll恢复
	g   *compiler.Graph
	cfg *config.Config

	graph   *algo.SearchGraph[*compiler.Node, *compiler.Edge]
	nodeIds map[string]int

	// 本轮已预定的边，edge -> 按预定顺序的机器人id
	futureBlockedEdges map[EdgeRef][]string
}

func New(g *compiler.Graph, cfg *config.Config) *Router {
	r := &Router{
		g:                  g,
		cfg:                cfg,
		nodeIds:            make(map[string]int),
		futureBlockedEdges: make(map[EdgeRef][]string),
	}
	r.buildSearchGraph()
	return r
}

// getter

func (r *Router) Graph() *compiler.Graph {
	return r.g
}

func (r *Router) Config() *config.Config {
	return r.cfg
}

func (r *Router) HasPoiID(id string) bool {
	_, ok := r.g.Poi(id)
	return ok
}

func (r *Router) HasNodeID(id string) bool {
	_, ok := r.nodeIds[id]
	return ok
}

func (r *Router) Edge(ref EdgeRef) (*compiler.Edge, bool) {
	return r.g.EdgeBetween(ref.From, ref.To)
}
