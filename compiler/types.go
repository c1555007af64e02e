package compiler

import (
	"errors"
	"math"
	"sort"

	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/topology"
	"github.com/paulmach/orb"
)

var (
	// 在非goto边上请求车道多边形
	ErrNotGoto = errors.New("corridor requested on non-goto edge")
)

// 展开节点类型
type NodeType string

const (
	NodeDock            NodeType = "dock"
	NodeWait            NodeType = "wait"
	NodeUndock          NodeType = "undock"
	NodeEnd             NodeType = "end"
	NodeNoChanges       NodeType = "noChanges"
	NodeIntersectionIn  NodeType = "intersection_in"
	NodeIntersectionOut NodeType = "intersection_out"
)

// 边上的行为
type Behaviour string

const (
	BehaviourGoto   Behaviour = "goto"
	BehaviourDock   Behaviour = "dock"
	BehaviourWait   Behaviour = "wait"
	BehaviourUndock Behaviour = "undock"
	BehaviourBatEx  Behaviour = "bat_ex"
)

// 边的来源
type EdgeKind int

const (
	EdgeMain         EdgeKind = iota // 由reduced edge生成的主路
	EdgeIntersection                 // 路口内部连接
	EdgeStand                        // POI内部的dock/wait/undock/bat_ex
	EdgeReturn                       // POI end -> 入口的零权返回边
)

// 组类型
type GroupKind string

const (
	GroupPoi          GroupKind = "poi"
	GroupIntersection GroupKind = "intersection"
	GroupNarrowLane   GroupKind = "narrow_lane"
)

// 0表示不属于任何组
const NoGroup = 0

type Node struct {
	ID    string
	Type  NodeType
	Base  string // 来源base node
	Role  topology.Role
	Pos   orb.Point
	Yaw   float64
	PoiID string

	// 仅路口的in/out节点有效
	Neighbor string // 相邻的base node
	BaseEdge string // 相邻的base edge
	WayType  topology.WayType
}

// 朝向对应的四元数(z, w)，x=y=0
func (n *Node) Quaternion() (z, w float64) {
	return math.Sin(n.Yaw / 2), math.Cos(n.Yaw / 2)
}

func (n *Node) IsStub() bool {
	return n.Type == NodeIntersectionIn || n.Type == NodeIntersectionOut
}

type Edge struct {
	ID        int
	From      string
	To        string
	Kind      EdgeKind
	Behaviour Behaviour
	// 通行用时（秒），nil表示包含被封闭的车道
	Weight *float64
	Group  int

	SourceNodes []string
	SourceEdges []string
	WayType     topology.WayType
	// 相关POI，无时为topology.NoPoi
	ConnectedPoi string
	// 最大同时通行机器人数，nil表示未限制
	MaxRobots *int
	// 机器人实际经过的折线
	Path     orb.LineString
	Corridor orb.Polygon

	// 当前在边上的机器人
	Robots []string

	active bool
}

func (e *Edge) Usable() bool {
	return e.Weight != nil
}

// 边长度，无路径时为0
func (e *Edge) Length() float64 {
	return pathLength(e.Path)
}

// 一个POI展开后的节点
type PoiNodes struct {
	PoiID   string
	Base    string
	Role    topology.Role
	Section topology.SectionType
	Group   int

	// 为空表示该类型POI没有对应节点
	Dock   string
	Wait   string
	Undock string
	End    string
	// noChanges类POI（parking/queue）的唯一节点
	Node string
}

// 编译后的调度图，结构在编译后不再变化
type Graph struct {
	cfg   config.GraphConfig
	nodes map[string]*Node
	order []string // 节点id按插入顺序
	edges []*Edge  // 下标即边id

	out    map[string][]*Edge
	in     map[string][]*Edge
	pair   map[[2]string]*Edge
	groups map[int][]*Edge
	kinds  map[int]GroupKind
	pois   map[string]*PoiNodes
	// 边id -> 所在POI的停靠链（驶入边、站内边、返回边）
	chains map[int][]*Edge
	// narrowTwoWay主路 -> 反向车道
	twins map[int]*Edge
}

func (g *Graph) Config() config.GraphConfig {
	return g.cfg
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// 节点id，按插入顺序
func (g *Graph) NodeIDs() []string {
	return g.order
}

func (g *Graph) Nodes() []*Node {
	ret := make([]*Node, len(g.order))
	for i, id := range g.order {
		ret[i] = g.nodes[id]
	}
	return ret
}

func (g *Graph) Edges() []*Edge {
	return g.edges
}

func (g *Graph) Edge(id int) (*Edge, bool) {
	if id < 0 || id >= len(g.edges) {
		return nil, false
	}
	return g.edges[id], true
}

func (g *Graph) EdgeBetween(from, to string) (*Edge, bool) {
	e, ok := g.pair[[2]string{from, to}]
	return e, ok
}

func (g *Graph) OutEdges(node string) []*Edge {
	return g.out[node]
}

func (g *Graph) InEdges(node string) []*Edge {
	return g.in[node]
}

func (g *Graph) GroupEdges(group int) []*Edge {
	return g.groups[group]
}

func (g *Graph) GroupKind(group int) GroupKind {
	return g.kinds[group]
}

// 所有组id，升序
func (g *Graph) Groups() []int {
	ids := make([]int, 0, len(g.groups))
	for id := range g.groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (g *Graph) Poi(poiID string) (*PoiNodes, bool) {
	p, ok := g.pois[poiID]
	return p, ok
}

// 边所在的POI停靠链，同一时刻只允许一台机器人；不属于任何停靠链时返回nil
func (g *Graph) StandChain(e *Edge) []*Edge {
	return g.chains[e.ID]
}

// narrowTwoWay车道的反向车道
func (g *Graph) Twin(e *Edge) (*Edge, bool) {
	t, ok := g.twins[e.ID]
	return t, ok
}

// 所有POI id，升序
func (g *Graph) PoiIDs() []string {
	ids := make([]string, 0, len(g.pois))
	for id := range g.pois {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
