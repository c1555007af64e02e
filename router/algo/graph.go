package algo

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
)

type node[T any] struct {
	p    orb.Point
	attr T
}

type edge[T any] struct {
	w    float64 // 当前边权，INF表示不可通行
	base float64 // 编译时边权，用于解除封锁后恢复
	attr T
}

type SearchGraph[NT any, ET any] struct {
	// 邻接表，in node -> out node -> edge
	// Runtime期间出边入边不变，但边权会被封锁/解封，因此需要考虑并发问题
	edges []map[int]*edge[ET]
	// 出边的插入顺序，保证相同代价时搜索结果稳定
	order [][]int
	// 点的位置
	nodes []node[NT]
	// A Star距离预估函数
	h IHeuristics

	mu *xsync.RBMutex
}

type IHeuristics interface {
	HeuristicEuclidean(orb.Point, orb.Point) float64
}

func NewSearchGraph[NT any, ET any](h IHeuristics) *SearchGraph[NT, ET] {
	return &SearchGraph[NT, ET]{
		edges: make([]map[int]*edge[ET], 0),
		order: make([][]int, 0),
		nodes: make([]node[NT], 0),
		h:     h,
		mu:    xsync.NewRBMutex(),
	}
}

func (g *SearchGraph[NT, ET]) InitNode(p orb.Point, attr NT) int {
	g.nodes = append(g.nodes, node[NT]{p: p, attr: attr})
	g.edges = append(g.edges, make(map[int]*edge[ET]))
	g.order = append(g.order, make([]int, 0))
	return len(g.nodes) - 1
}

// 初始化边，length为INF时表示该边当前不可通行
func (g *SearchGraph[NT, ET]) InitEdge(from, to int, length float64, attr ET) error {
	if from >= len(g.edges) || to >= len(g.edges) {
		return fmt.Errorf("%w: edge %d->%d with %d nodes", ErrNodeNotFound, from, to, len(g.edges))
	}
	if length < 0 {
		return fmt.Errorf("%w: %d->%d length %v", ErrNegativeWeight, from, to, length)
	}
	if _, ok := g.edges[from][to]; !ok {
		g.order[from] = append(g.order[from], to)
	}
	g.edges[from][to] = &edge[ET]{w: length, base: length, attr: attr}
	return nil
}

func (g *SearchGraph[NT, ET]) NodeCount() int {
	return len(g.nodes)
}

func (g *SearchGraph[NT, ET]) NodeAttr(id int) NT {
	return g.nodes[id].attr
}

func (g *SearchGraph[NT, ET]) GetEdgeLengthAndAttr(from, to int) (float64, ET, error) {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)
	e, ok := g.edges[from][to]
	if !ok {
		var zero ET
		return INF, zero, fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, from, to)
	}
	return e.w, e.attr, nil
}

func (g *SearchGraph[NT, ET]) GetEdgeLength(from, to int) float64 {
	w, _, _ := g.GetEdgeLengthAndAttr(from, to)
	return w
}

func (g *SearchGraph[NT, ET]) SetEdgeLength(from, to int, length float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[from][to]
	if !ok {
		return fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, from, to)
	}
	if length < 0 {
		return fmt.Errorf("%w: %d->%d length %v", ErrNegativeWeight, from, to, length)
	}
	e.w = length
	return nil
}

// 将边权恢复为初始化时的值
func (g *SearchGraph[NT, ET]) ResetEdgeLength(from, to int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[from][to]
	if !ok {
		return fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, from, to)
	}
	e.w = e.base
	return nil
}

// 恢复所有边权
func (g *SearchGraph[NT, ET]) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, out := range g.edges {
		for _, e := range out {
			e.w = e.base
		}
	}
}

type PathItem[NT any, ET any] struct {
	NodeID   int
	NodeAttr NT
	EdgeAttr ET // 由该点出发的边，终点处为零值
}

func (g *SearchGraph[NT, ET]) reconstructPath(cameFrom map[int]int, curNode int) ([]PathItem[NT, ET], float64) {
	pathBeforeReversed := []PathItem[NT, ET]{{NodeID: curNode, NodeAttr: g.nodes[curNode].attr}}
	cost := .0
	for {
		from, ok := cameFrom[curNode]
		if !ok {
			break
		}
		e := g.edges[from][curNode]
		cost += e.w
		curNode = from
		pathBeforeReversed = append(pathBeforeReversed, PathItem[NT, ET]{
			NodeID:   curNode,
			NodeAttr: g.nodes[curNode].attr,
			EdgeAttr: e.attr,
		})
	}
	return lo.Reverse(pathBeforeReversed), cost
}

func (g *SearchGraph[NT, ET]) ShortestPath(start, end int) ([]PathItem[NT, ET], float64) {
	return g.ShortestPathAStar(start, end)
}

// A Star算法求最短路，不可达时返回nil和INF
func (g *SearchGraph[NT, ET]) ShortestPathAStar(start, end int) ([]PathItem[NT, ET], float64) {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)
	if start < 0 || end < 0 || start >= len(g.nodes) || end >= len(g.nodes) {
		return nil, INF
	}
	if start == end {
		return []PathItem[NT, ET]{{NodeID: start, NodeAttr: g.nodes[start].attr}}, 0
	}
	seq := 0
	openSet := make(PriorityQueue, 1)
	openSetMap := make(map[int]*Item, 1) // openSet value -> openSet item
	closed := make(map[int]bool)
	cameFrom := make(map[int]int, 0)
	gScore := make(map[int]float64, 0)
	gScore[start] = .0
	fScore := g.h.HeuristicEuclidean(g.nodes[start].p, g.nodes[end].p)
	openSet[0] = &Item{Value: start, Priority: fScore, Index: 0}
	openSetMap[start] = openSet[0]
	heap.Init(&openSet)
	for openSet.Len() > 0 {
		cur := heap.Pop(&openSet).(*Item).Value
		delete(openSetMap, cur)
		if cur == end {
			return g.reconstructPath(cameFrom, cur)
		}
		closed[cur] = true
		for _, neighbor := range g.order[cur] {
			e := g.edges[cur][neighbor]
			// 被封锁的边跳过
			if math.IsInf(e.w, 1) || closed[neighbor] {
				continue
			}
			gScoreTentative := gScore[cur] + e.w
			gScoreNeighbor, ok := gScore[neighbor]
			if !ok {
				gScoreNeighbor = INF
			}
			if gScoreTentative < gScoreNeighbor {
				cameFrom[neighbor] = cur
				gScore[neighbor] = gScoreTentative
				fScore := gScoreTentative + g.h.HeuristicEuclidean(g.nodes[neighbor].p, g.nodes[end].p)
				if item, ok := openSetMap[neighbor]; ok {
					// 已经在堆中的节点，修改其优先级
					item.Priority = fScore
					heap.Fix(&openSet, item.Index)
				} else {
					// 新访问的节点
					seq++
					item := &Item{Value: neighbor, Priority: fScore, seq: seq}
					heap.Push(&openSet, item)
					openSetMap[neighbor] = item
				}
			}
		}
	}
	return nil, INF
}
