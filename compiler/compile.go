package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/topology"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "compiler")

// 编译中间状态，各阶段只读取之前阶段写入的字段
type build struct {
	t       *topology.Topology
	cfg     config.GraphConfig
	reduced []*topology.ReducedEdge
	poiInfo map[string]*topology.Poi

	// grouping
	nodeGroup map[string]int
	edgeGroup []int
	served    map[string]string // waiting/departure/waiting-departure -> 所服务POI id
	kinds     map[int]GroupKind

	g *Graph
}

type stage struct {
	name string
	run  func(*build)
}

// 编译流程，按顺序执行
var stages = []stage{
	{"grouping", (*build).grouping},
	{"poi expansion", (*build).expandPois},
	{"main-path stitching", (*build).stitch},
	{"intersection completion", (*build).completeIntersections},
	{"auxiliary linking", (*build).linkApproaches},
	{"placement", (*build).place},
	{"weighting", (*build).weigh},
	{"capacity", (*build).capacity},
	{"corridor geometry", (*build).corridors},
	{"pose", (*build).pose},
}

// 将人工编辑的拓扑编译为调度图，拓扑不合法时返回*topology.TopologyError且不产生任何结果
func Compile(t *topology.Topology, cfg config.GraphConfig) (*Graph, error) {
	if err := t.Normalize(); err != nil {
		return nil, err
	}
	reduced, err := topology.Reduce(t)
	if err != nil {
		return nil, err
	}
	if err := topology.Validate(t, reduced); err != nil {
		return nil, err
	}
	b := &build{
		t:         t,
		cfg:       cfg,
		reduced:   reduced,
		poiInfo:   t.PoiIndex(),
		nodeGroup: make(map[string]int),
		served:    make(map[string]string),
		kinds:     make(map[int]GroupKind),
		g: &Graph{
			cfg:   cfg,
			nodes: make(map[string]*Node),
			order: make([]string, 0),
			edges: make([]*Edge, 0),
			pois:  make(map[string]*PoiNodes),
		},
	}
	for _, s := range stages {
		s.run(b)
		log.Debugf("stage %s: %d nodes, %d edges", s.name, len(b.g.order), len(b.g.edges))
	}
	g := b.g
	g.index(b.kinds)
	log.Infof("compiled %d base nodes, %d base edges (%d reduced) into %d nodes, %d edges, %d groups",
		len(t.Nodes), len(t.Edges), len(reduced), len(g.order), len(g.edges), len(g.groups))
	if u := g.Unreachable(); len(u) > 0 {
		log.Warnf("%d nodes are outside the main strongly connected component: %v", len(u), u)
	}
	return g, nil
}

func (b *build) newGroup(kind GroupKind) int {
	id := len(b.kinds) + 1
	b.kinds[id] = kind
	return id
}

func (b *build) addNode(n *Node) *Node {
	if old, ok := b.g.nodes[n.ID]; ok {
		return old
	}
	if n.PoiID == "" {
		n.PoiID = topology.NoPoi
	}
	b.g.nodes[n.ID] = n
	b.g.order = append(b.g.order, n.ID)
	return n
}

func (b *build) addEdge(e *Edge) {
	e.ID = len(b.g.edges)
	if e.ConnectedPoi == "" {
		e.ConnectedPoi = topology.NoPoi
	}
	b.g.edges = append(b.g.edges, e)
}

func chainKey(nodes []string) string {
	return strings.Join(nodes, "|")
}

// 1. 每个POI（含parking/queue）一个组，waiting/departure/waiting-departure并入所服务POI的组，
// 未分组的narrowTwoWay与反向边成对成组
func (b *build) grouping() {
	for _, id := range b.t.NodeIDs() {
		n := b.t.Nodes[id]
		if n.Role.IsStand() || n.Role == topology.RoleParking || n.Role == topology.RoleQueue {
			b.nodeGroup[id] = b.newGroup(GroupPoi)
		}
	}
	for _, r := range b.reduced {
		s, e := b.t.Nodes[r.Start()], b.t.Nodes[r.End()]
		switch {
		case (s.Role == topology.RoleWaiting || s.Role == topology.RoleWaitingDeparture) && e.Role.IsStand():
			b.nodeGroup[s.ID] = b.nodeGroup[e.ID]
			b.served[s.ID] = e.PoiID
		case e.Role == topology.RoleDeparture && s.Role.IsStand():
			b.nodeGroup[e.ID] = b.nodeGroup[s.ID]
			b.served[e.ID] = s.PoiID
		}
	}
	b.edgeGroup = make([]int, len(b.reduced))
	for i, r := range b.reduced {
		if g := b.nodeGroup[r.Start()]; g != NoGroup {
			b.edgeGroup[i] = g
			continue
		}
		b.edgeGroup[i] = b.nodeGroup[r.End()]
	}
	twins := make(map[string]int)
	for i, r := range b.reduced {
		if b.edgeGroup[i] != NoGroup || r.WayType != topology.NarrowTwoWay {
			continue
		}
		rev := chainKey(lo.Reverse(append([]string{}, r.Nodes...)))
		if j, ok := twins[rev]; ok {
			g := b.newGroup(GroupNarrowLane)
			b.edgeGroup[i], b.edgeGroup[j] = g, g
			delete(twins, rev)
			continue
		}
		twins[chainKey(r.Nodes)] = i
	}
}

func expandedID(base string, t NodeType) string {
	return base + "." + string(t)
}

// 2. POI展开为dock->wait->undock->end或wait->end，noChanges节点保持为单个节点
func (b *build) expandPois() {
	for _, id := range b.t.NodeIDs() {
		n := b.t.Nodes[id]
		group := b.nodeGroup[id]
		poi := &PoiNodes{PoiID: n.PoiID, Base: id, Role: n.Role, Section: n.Role.Section(), Group: group}
		var chain []NodeType
		switch poi.Section {
		case topology.SectionDockWaitUndock:
			chain = []NodeType{NodeDock, NodeWait, NodeUndock, NodeEnd}
			poi.Dock, poi.Wait = expandedID(id, NodeDock), expandedID(id, NodeWait)
			poi.Undock, poi.End = expandedID(id, NodeUndock), expandedID(id, NodeEnd)
		case topology.SectionWaitPOI:
			chain = []NodeType{NodeWait, NodeEnd}
			poi.Wait, poi.End = expandedID(id, NodeWait), expandedID(id, NodeEnd)
		case topology.SectionNoChanges:
			b.addNode(&Node{ID: id, Type: NodeNoChanges, Base: id, Role: n.Role, PoiID: n.PoiID})
			if n.HasPoi() {
				poi.Node = id
				b.g.pois[n.PoiID] = poi
			}
			continue
		default:
			continue
		}
		for _, t := range chain {
			b.addNode(&Node{ID: expandedID(id, t), Type: t, Base: id, Role: n.Role, PoiID: n.PoiID})
		}
		stand := BehaviourWait
		if n.Role == topology.RoleCharger {
			stand = BehaviourBatEx
		}
		behaviours := map[NodeType]Behaviour{NodeDock: BehaviourDock, NodeWait: stand, NodeUndock: BehaviourUndock}
		for i := 0; i+1 < len(chain); i++ {
			b.addEdge(&Edge{
				From: expandedID(id, chain[i]), To: expandedID(id, chain[i+1]),
				Kind: EdgeStand, Behaviour: behaviours[chain[i]], Group: group,
				SourceNodes: []string{id}, ConnectedPoi: n.PoiID, active: true,
			})
		}
		// 返回边，允许立即再次调度到同一POI
		b.addEdge(&Edge{
			From: expandedID(id, chain[len(chain)-1]), To: expandedID(id, chain[0]),
			Kind: EdgeReturn, Behaviour: BehaviourGoto, Group: group,
			SourceNodes: []string{id}, ConnectedPoi: n.PoiID, active: true,
		})
		b.g.pois[n.PoiID] = poi
	}
}

func (b *build) stub(base *topology.BaseNode, t NodeType, neighbor, baseEdge string, way topology.WayType) string {
	dir := "in"
	if t == NodeIntersectionOut {
		dir = "out"
	}
	return b.addNode(&Node{
		ID:       fmt.Sprintf("%s.%s.%s", base.ID, dir, baseEdge),
		Type:     t,
		Base:     base.ID,
		Role:     base.Role,
		PoiID:    topology.NoPoi,
		Neighbor: neighbor,
		BaseEdge: baseEdge,
		WayType:  way,
	}).ID
}

func (b *build) exitNode(r *topology.ReducedEdge) string {
	n := b.t.Nodes[r.Start()]
	switch n.Role.Section() {
	case topology.SectionDockWaitUndock, topology.SectionWaitPOI:
		return expandedID(n.ID, NodeEnd)
	case topology.SectionIntersection:
		return b.stub(n, NodeIntersectionOut, r.StartNeighbor(), r.FirstEdge(), r.WayType)
	default:
		return n.ID
	}
}

func (b *build) entryNode(r *topology.ReducedEdge) string {
	n := b.t.Nodes[r.End()]
	switch n.Role.Section() {
	case topology.SectionDockWaitUndock:
		return expandedID(n.ID, NodeDock)
	case topology.SectionWaitPOI:
		return expandedID(n.ID, NodeWait)
	case topology.SectionIntersection:
		return b.stub(n, NodeIntersectionIn, r.EndNeighbor(), r.LastEdge(), r.WayType)
	default:
		return n.ID
	}
}

// 3. 每条reduced edge生成一条goto主路
func (b *build) stitch() {
	for i, r := range b.reduced {
		poi := topology.NoPoi
		for _, id := range []string{r.Start(), r.End()} {
			if n := b.t.Nodes[id]; n.Role.IsStand() {
				poi = n.PoiID
			}
		}
		b.addEdge(&Edge{
			From:         b.exitNode(r),
			To:           b.entryNode(r),
			Kind:         EdgeMain,
			Behaviour:    BehaviourGoto,
			Group:        b.edgeGroup[i],
			SourceNodes:  append([]string{}, r.Nodes...),
			SourceEdges:  append([]string{}, r.Edges...),
			WayType:      r.WayType,
			ConnectedPoi: poi,
			active:       r.Active,
		})
	}
}

// 4. 路口内所有in节点连接到所有out节点
func (b *build) completeIntersections() {
	ins := make(map[string][]*Node)
	outs := make(map[string][]*Node)
	for _, id := range b.g.order {
		n := b.g.nodes[id]
		switch n.Type {
		case NodeIntersectionIn:
			ins[n.Base] = append(ins[n.Base], n)
		case NodeIntersectionOut:
			outs[n.Base] = append(outs[n.Base], n)
		}
	}
	for _, id := range b.t.NodeIDs() {
		n := b.t.Nodes[id]
		if n.Role.Section() != topology.SectionIntersection || len(ins[id]) == 0 || len(outs[id]) == 0 {
			continue
		}
		group := NoGroup
		if n.Role == topology.RoleWaitingDeparture {
			group = b.nodeGroup[id]
		}
		if group == NoGroup {
			group = b.newGroup(GroupIntersection)
		}
		for _, in := range ins[id] {
			for _, out := range outs[id] {
				b.addEdge(&Edge{
					From:        in.ID,
					To:          out.ID,
					Kind:        EdgeIntersection,
					Behaviour:   BehaviourGoto,
					Group:       group,
					SourceNodes: []string{id},
					SourceEdges: lo.Uniq([]string{in.BaseEdge, out.BaseEdge}),
					active:      true,
				})
			}
		}
	}
}

// 5. 驶向waiting/parking/queue的主路以及waiting-departure路口侧的驶入边标记所属POI
func (b *build) linkApproaches() {
	out := make(map[string][]*Edge)
	for _, e := range b.g.edges {
		out[e.From] = append(out[e.From], e)
	}
	for _, e := range b.g.edges {
		if e.Kind != EdgeMain {
			continue
		}
		to := b.t.Nodes[e.SourceNodes[len(e.SourceNodes)-1]]
		switch to.Role {
		case topology.RoleWaiting:
			e.ConnectedPoi = b.served[to.ID]
		case topology.RoleParking, topology.RoleQueue:
			e.ConnectedPoi = to.PoiID
		case topology.RoleWaitingDeparture:
			if b.t.Nodes[e.SourceNodes[0]].Role != topology.RoleIntersection {
				continue
			}
			poi := b.served[to.ID]
			e.ConnectedPoi = poi
			for _, next := range out[e.To] {
				if b.t.Nodes[b.g.nodes[next.To].Neighbor].Role.IsStand() {
					next.ConnectedPoi = poi
				}
			}
		}
	}
}

// 6. 路口出入节点按相邻节点方位偏移，其余节点取base node位置
func (b *build) place() {
	for _, id := range b.g.order {
		n := b.g.nodes[id]
		base := b.t.Nodes[n.Base]
		if !n.IsStub() {
			n.Pos = base.Pos
			continue
		}
		theta := bearing(base.Pos, b.t.Nodes[n.Neighbor].Pos)
		n.Pos = frame(base.Pos, theta).apply(stubOffset(n.Type, n.WayType, b.cfg))
	}
}

func (b *build) mainPath(e *Edge) orb.LineString {
	path := make(orb.LineString, 0, len(e.SourceNodes))
	path = append(path, b.g.nodes[e.From].Pos)
	for _, id := range e.SourceNodes[1 : len(e.SourceNodes)-1] {
		path = append(path, b.t.Nodes[id].Pos)
	}
	return append(path, b.g.nodes[e.To].Pos)
}

// 路口内路径：in节点 -> 驶入方向的转向点 -> 驶出方向的转向点 -> out节点，同一车道掉头时直连
func (b *build) intersectionPath(e *Edge) orb.LineString {
	in, out := b.g.nodes[e.From], b.g.nodes[e.To]
	if in.BaseEdge == out.BaseEdge {
		return orb.LineString{in.Pos, out.Pos}
	}
	center := b.t.Nodes[in.Base].Pos
	half := b.cfg.CorridorWidth / 2
	step := func(n *Node) orb.Point {
		lateral := stubOffset(n.Type, n.WayType, b.cfg)[1]
		return frame(center, bearing(center, b.t.Nodes[n.Neighbor].Pos)).apply(orb.Point{half, lateral})
	}
	return dedupe(orb.LineString{in.Pos, step(in), step(out), out.Pos})
}

// 7. goto按路径长度/速度向上取整，其余行为使用固定用时；包含封闭车道的边没有权重
func (b *build) weigh() {
	for _, e := range b.g.edges {
		switch e.Kind {
		case EdgeMain:
			e.Path = b.mainPath(e)
		case EdgeIntersection:
			e.Path = b.intersectionPath(e)
		}
		if !e.active {
			e.Weight = nil
			continue
		}
		var w float64
		switch e.Behaviour {
		case BehaviourDock:
			w = b.cfg.DockWeight
		case BehaviourUndock:
			w = b.cfg.UndockWeight
		case BehaviourWait:
			w = b.cfg.WaitWeight
		case BehaviourBatEx:
			w = b.cfg.BatExWeight
		case BehaviourGoto:
			w = math.Ceil(e.Length() / b.cfg.RobotSpeed)
		}
		e.Weight = &w
	}
}

// 8. 不与POI停靠点相连的主路按车长限制同时通行数量
func (b *build) capacity() {
	for _, e := range b.g.edges {
		if e.Kind != EdgeMain || len(e.SourceNodes) < 2 {
			continue
		}
		first, last := e.SourceNodes[0], e.SourceNodes[len(e.SourceNodes)-1]
		if b.t.Nodes[first].Role.IsStand() || b.t.Nodes[last].Role.IsStand() {
			continue
		}
		m := max(int(math.Floor(e.Length()/b.cfg.RobotLength)), 1)
		e.MaxRobots = &m
	}
}

// 9. goto边的车道多边形
func (b *build) corridors() {
	for _, e := range b.g.edges {
		if e.Behaviour == BehaviourGoto {
			e.Corridor = corridor(e.Path, b.cfg)
		}
	}
}

// 10. 路口出入节点朝向沿车道方向，POI节点使用外部给定的位姿，其余取最后一段驶入方向
func (b *build) pose() {
	approach := make(map[string]float64)
	for _, e := range b.g.edges {
		if e.Kind != EdgeMain || len(e.Path) < 2 {
			continue
		}
		to := b.g.nodes[e.To]
		if to.IsStub() {
			continue
		}
		n := len(e.Path)
		approach[to.Base] = bearing(e.Path[n-2], e.Path[n-1])
	}
	for _, id := range b.g.order {
		n := b.g.nodes[id]
		switch n.Type {
		case NodeIntersectionIn:
			n.Yaw = normalizeAngle(bearing(b.t.Nodes[n.Base].Pos, b.t.Nodes[n.Neighbor].Pos) + math.Pi)
		case NodeIntersectionOut:
			n.Yaw = bearing(b.t.Nodes[n.Base].Pos, b.t.Nodes[n.Neighbor].Pos)
		default:
			if p, ok := b.poiInfo[n.PoiID]; ok && n.PoiID != topology.NoPoi {
				n.Yaw = p.Pose.Yaw
				continue
			}
			n.Yaw = approach[n.Base]
		}
	}
}

// 编译完成后建立查询索引
func (g *Graph) index(kinds map[int]GroupKind) {
	g.out = make(map[string][]*Edge, len(g.order))
	g.in = make(map[string][]*Edge, len(g.order))
	g.pair = make(map[[2]string]*Edge, len(g.edges))
	g.groups = make(map[int][]*Edge)
	g.kinds = kinds
	for _, e := range g.edges {
		g.out[e.From] = append(g.out[e.From], e)
		g.in[e.To] = append(g.in[e.To], e)
		g.pair[[2]string{e.From, e.To}] = e
		if e.Group != NoGroup {
			g.groups[e.Group] = append(g.groups[e.Group], e)
		}
	}
	g.chains = make(map[int][]*Edge)
	for _, p := range g.pois {
		entry := lo.Ternary(p.Dock != "", p.Dock, p.Wait)
		if entry == "" {
			continue
		}
		chain := lo.Filter(g.groups[p.Group], func(e *Edge, _ int) bool {
			return e.ConnectedPoi == p.PoiID && (e.Kind == EdgeStand || e.Kind == EdgeReturn || e.To == entry)
		})
		for _, e := range chain {
			g.chains[e.ID] = chain
		}
	}
	narrow := make(map[string]*Edge)
	for _, e := range g.edges {
		if e.Kind == EdgeMain && e.WayType == topology.NarrowTwoWay {
			narrow[chainKey(e.SourceNodes)] = e
		}
	}
	g.twins = make(map[int]*Edge)
	for key, e := range narrow {
		rev := chainKey(lo.Reverse(strings.Split(key, "|")))
		if t, ok := narrow[rev]; ok {
			g.twins[e.ID] = t
		}
	}
}

// 边的车道多边形，仅goto边有效
func (g *Graph) Corridor(e *Edge) (orb.Polygon, error) {
	if e.Behaviour != BehaviourGoto {
		return nil, fmt.Errorf("%w: edge %d (%s)", ErrNotGoto, e.ID, e.Behaviour)
	}
	return corridor(e.Path, g.cfg), nil
}
