package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/dispatch"
	"github.com/fleetgrid/routing/router"
	"github.com/fleetgrid/routing/topology"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var log = logrus.WithField("module", "server")

const (
	DispatchServiceName = "fleetgrid.dispatch.v1.DispatchService"

	CompileProcedure      = "/" + DispatchServiceName + "/Compile"
	GetGraphProcedure     = "/" + DispatchServiceName + "/GetGraph"
	GetPlanProcedure      = "/" + DispatchServiceName + "/GetPlan"
	GetRobotPlanProcedure = "/" + DispatchServiceName + "/GetRobotPlan"
)

var errNoGraph = errors.New("no compiled graph, call Compile first")

// 请求与响应均为普通结构体，使用json编解码
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

type CompileRequest struct {
	Topology *topology.Topology `json:"topology"`
}

type CompileResponse struct {
	Nodes       int      `json:"nodes"`
	Edges       int      `json:"edges"`
	Pois        []string `json:"pois"`
	Unreachable []string `json:"unreachable"`
}

type GetGraphRequest struct{}

type GraphNode struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	Base  string    `json:"base"`
	PoiID string    `json:"poi_id"`
	Pos   orb.Point `json:"position"`
	Yaw   float64   `json:"yaw"`
	QuatZ float64   `json:"quat_z"`
	QuatW float64   `json:"quat_w"`
}

type GraphEdge struct {
	ID           int      `json:"id"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	Behaviour    string   `json:"behaviour"`
	Weight       *float64 `json:"weight"`
	Group        int      `json:"group"`
	WayType      string   `json:"way_type"`
	ConnectedPoi string   `json:"connected_poi"`
	MaxRobots    *int     `json:"max_robots"`
	SourceNodes  []string `json:"source_nodes"`
	SourceEdges  []string `json:"source_edges"`
}

type GetGraphResponse struct {
	Nodes   []GraphNode                `json:"nodes"`
	Edges   []GraphEdge                `json:"edges"`
	GeoJSON *geojson.FeatureCollection `json:"geojson"`
}

type PlanRequest struct {
	Robots []*router.Robot `json:"robots"`
	Tasks  []*router.Task  `json:"tasks"`
	// 当前时刻（秒），用于判断任务是否可开始
	Now float64 `json:"now"`
}

type PlanResponse struct {
	Plan dispatch.Plan `json:"plan"`
	// 本轮更新后的任务状态
	Tasks      []*router.Task `json:"tasks"`
	Unanalyzed []string       `json:"unanalyzed"`
	Errors     []string       `json:"errors"`
}

type RobotPlanRequest struct {
	PlanRequest
	RobotID string `json:"robot_id"`
}

type RobotPlanResponse struct {
	Entry      *dispatch.PlanEntry `json:"entry"`
	Tasks      []*router.Task      `json:"tasks"`
	Unanalyzed []string            `json:"unanalyzed"`
	Errors     []string            `json:"errors"`
}

type DispatchServer struct {
	cfg *config.Config

	// Compile时整体替换
	mu         sync.RWMutex
	dispatcher *dispatch.Dispatcher

	// 接口开启true或关闭false
	ok bool
	// 条件变量
	cond *sync.Cond
}

// 加载拓扑并编译，topoPath为nil时等待Compile请求提供拓扑
func NewDispatchServer(
	mongoURI string,
	topoPath *Path,
	cacheDir string,
	cfg *config.Config,
) *DispatchServer {
	s := newDispatchServer(cfg)
	if topoPath == nil {
		log.Warn("no topology given, waiting for Compile request")
		return s
	}
	var t *topology.Topology
	var err error
	if topoPath.IsFile() {
		t, err = topology.LoadFile(topoPath.File)
	} else {
		t, err = topology.LoadWithCache(cacheDir, topoPath.GetCacheKey(), func() (*topology.Topology, error) {
			return loadFromMongo(mongoURI, topoPath)
		})
	}
	if err != nil {
		log.Panicf("failed to load topology from %s: %v", topoPath, err)
	}
	if _, err := s.compile(t); err != nil {
		log.Panicf("failed to compile topology from %s: %v", topoPath, err)
	}
	return s
}

func newDispatchServer(cfg *config.Config) *DispatchServer {
	return &DispatchServer{
		cfg: cfg,
		ok:  true, cond: sync.NewCond(&sync.Mutex{}),
	}
}

func loadFromMongo(mongoURI string, p *Path) (*topology.Topology, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	defer client.Disconnect(context.Background())
	return topology.LoadMongo(ctx, client.Database(p.DB).Collection(p.Coll))
}

// 编译拓扑并替换当前的调度器
func (s *DispatchServer) compile(t *topology.Topology) (*compiler.Graph, error) {
	g, err := compiler.Compile(t, s.cfg.Graph)
	if err != nil {
		return nil, err
	}
	d := dispatch.New(router.New(g, s.cfg))
	s.mu.Lock()
	s.dispatcher = d
	s.mu.Unlock()
	return g, nil
}

func (s *DispatchServer) current() (*dispatch.Dispatcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dispatcher == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errNoGraph)
	}
	return s.dispatcher, nil
}

// 暂停-恢复机制
func (s *DispatchServer) wait() {
	s.cond.L.Lock()
	for !s.ok {
		// 暂停中
		s.cond.Wait()
	}
	s.cond.L.Unlock()
}

func (s *DispatchServer) Compile(
	ctx context.Context,
	req *connect.Request[CompileRequest],
) (*connect.Response[CompileResponse], error) {
	s.wait()
	in := req.Msg
	if in.Topology == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("no topology in request"))
	}
	g, err := s.compile(in.Topology)
	if err != nil {
		if errors.Is(err, topology.ErrTopology) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&CompileResponse{
		Nodes:       len(g.NodeIDs()),
		Edges:       len(g.Edges()),
		Pois:        g.PoiIDs(),
		Unreachable: g.Unreachable(),
	}), nil
}

func (s *DispatchServer) GetGraph(
	ctx context.Context,
	req *connect.Request[GetGraphRequest],
) (*connect.Response[GetGraphResponse], error) {
	s.wait()
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	g := d.Router().Graph()
	ret := &GetGraphResponse{
		Nodes:   make([]GraphNode, 0, len(g.NodeIDs())),
		Edges:   make([]GraphEdge, 0, len(g.Edges())),
		GeoJSON: g.GeoJSON(),
	}
	for _, n := range g.Nodes() {
		z, w := n.Quaternion()
		ret.Nodes = append(ret.Nodes, GraphNode{
			ID: n.ID, Type: string(n.Type), Base: n.Base, PoiID: n.PoiID,
			Pos: n.Pos, Yaw: n.Yaw, QuatZ: z, QuatW: w,
		})
	}
	for _, e := range g.Edges() {
		ret.Edges = append(ret.Edges, GraphEdge{
			ID: e.ID, From: e.From, To: e.To,
			Behaviour:    string(e.Behaviour),
			Weight:       e.Weight,
			Group:        e.Group,
			WayType:      string(e.WayType),
			ConnectedPoi: e.ConnectedPoi,
			MaxRobots:    e.MaxRobots,
			SourceNodes:  e.SourceNodes,
			SourceEdges:  e.SourceEdges,
		})
	}
	return connect.NewResponse(ret), nil
}

func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		ret := make([]string, 0)
		for _, e := range joined.Unwrap() {
			ret = append(ret, e.Error())
		}
		return ret
	}
	return []string{err.Error()}
}

func taskIDs(tasks []*router.Task) []string {
	ret := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ret = append(ret, t.ID)
	}
	return ret
}

func checkPlanRequest(in *PlanRequest) error {
	for _, r := range in.Robots {
		if r == nil || r.ID == "" {
			return connect.NewError(connect.CodeInvalidArgument, errors.New("robot without id"))
		}
	}
	for _, t := range in.Tasks {
		if t == nil || t.ID == "" || len(t.Steps) == 0 {
			return connect.NewError(connect.CodeInvalidArgument, errors.New("task without id or steps"))
		}
	}
	return nil
}

func (s *DispatchServer) GetPlan(
	ctx context.Context,
	req *connect.Request[PlanRequest],
) (*connect.Response[PlanResponse], error) {
	s.wait()
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	in := req.Msg
	if err := checkPlanRequest(in); err != nil {
		return nil, err
	}
	log.Debugf("plan %d robots, %d tasks at %.1f", len(in.Robots), len(in.Tasks), in.Now)
	plan, err := d.GetPlanAllFreeRobots(in.Robots, in.Tasks, in.Now)
	// 规划错误只影响相关任务，其余结果照常返回
	return connect.NewResponse(&PlanResponse{
		Plan:       plan,
		Tasks:      in.Tasks,
		Unanalyzed: taskIDs(d.Unanalyzed()),
		Errors:     errorStrings(err),
	}), nil
}

func (s *DispatchServer) GetRobotPlan(
	ctx context.Context,
	req *connect.Request[RobotPlanRequest],
) (*connect.Response[RobotPlanResponse], error) {
	s.wait()
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	in := req.Msg
	if err := checkPlanRequest(&in.PlanRequest); err != nil {
		return nil, err
	}
	known := false
	for _, r := range in.Robots {
		known = known || r.ID == in.RobotID
	}
	if !known {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no robot %q in request", in.RobotID))
	}
	entry, err := d.GetPlanSelectedRobot(in.RobotID, in.Robots, in.Tasks, in.Now)
	return connect.NewResponse(&RobotPlanResponse{
		Entry:      entry,
		Tasks:      in.Tasks,
		Unanalyzed: taskIDs(d.Unanalyzed()),
		Errors:     errorStrings(err),
	}), nil
}

// 暂停调度服务
func (s *DispatchServer) Suspend() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.ok = false
}

// 恢复调度服务
func (s *DispatchServer) Resume() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.ok = true
	s.cond.Broadcast()
}

// 注册所有接口，返回服务路径前缀与handler
func NewDispatchServiceHandler(s *DispatchServer, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, s.Compile, opts...))
	mux.Handle(GetGraphProcedure, connect.NewUnaryHandler(GetGraphProcedure, s.GetGraph, opts...))
	mux.Handle(GetPlanProcedure, connect.NewUnaryHandler(GetPlanProcedure, s.GetPlan, opts...))
	mux.Handle(GetRobotPlanProcedure, connect.NewUnaryHandler(GetRobotPlanProcedure, s.GetRobotPlan, opts...))
	return "/" + DispatchServiceName + "/", mux
}
