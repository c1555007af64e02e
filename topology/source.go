package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/yaml.v3"
)

var log = logrus.WithField("module", "topology")

// 从yaml或json文件读取拓扑
func LoadFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	t := &Topology{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, t)
	default:
		err = yaml.Unmarshal(data, t)
	}
	if err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	if err := t.Normalize(); err != nil {
		return nil, err
	}
	log.Infof("load topology from %s: %d nodes, %d edges, %d pois", path, len(t.Nodes), len(t.Edges), len(t.Pois))
	return t, nil
}

func SaveFile(path string, t *Topology) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type xy struct {
	X float64 `bson:"x"`
	Y float64 `bson:"y"`
}

func (p xy) point() orb.Point {
	return orb.Point{p.X, p.Y}
}

type mongoNode struct {
	ID       string `bson:"id"`
	Position xy     `bson:"position"`
	Role     string `bson:"role"`
	PoiID    string `bson:"poi_id"`
}

type mongoEdge struct {
	ID       string `bson:"id"`
	Start    string `bson:"start_node"`
	End      string `bson:"end_node"`
	WayType  string `bson:"way_type"`
	IsActive *bool  `bson:"is_active"`
}

type mongoPoi struct {
	ID   string `bson:"id"`
	Pose struct {
		X   float64 `bson:"x"`
		Y   float64 `bson:"y"`
		Yaw float64 `bson:"yaw"`
	} `bson:"pose"`
	Role string `bson:"role"`
}

// 按class读取一类文档的data字段
func findData[T any](ctx context.Context, coll *mongo.Collection, class string) ([]T, error) {
	cur, err := coll.Find(ctx, bson.M{"class": class})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	ret := make([]T, 0)
	for cur.Next(ctx) {
		var doc struct {
			Data T `bson:"data"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ret = append(ret, doc.Data)
	}
	return ret, cur.Err()
}

// 从mongo集合读取拓扑，文档格式为{class: node|edge|poi, data: {...}}
func LoadMongo(ctx context.Context, coll *mongo.Collection) (*Topology, error) {
	nodes, err := findData[mongoNode](ctx, coll, "node")
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	edges, err := findData[mongoEdge](ctx, coll, "edge")
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	pois, err := findData[mongoPoi](ctx, coll, "poi")
	if err != nil {
		return nil, fmt.Errorf("load pois: %w", err)
	}
	t := &Topology{
		Nodes: make(map[string]*BaseNode, len(nodes)),
		Edges: make(map[string]*BaseEdge, len(edges)),
		Pois:  make([]*Poi, 0, len(pois)),
	}
	for _, n := range nodes {
		t.Nodes[n.ID] = &BaseNode{Pos: n.Position.point(), Role: Role(n.Role), PoiID: n.PoiID}
	}
	for _, e := range edges {
		t.Edges[e.ID] = &BaseEdge{Start: e.Start, End: e.End, WayType: WayType(e.WayType), Active: e.IsActive}
	}
	for _, p := range pois {
		t.Pois = append(t.Pois, &Poi{
			ID:   p.ID,
			Pose: Pose{Pos: orb.Point{p.Pose.X, p.Pose.Y}, Yaw: p.Pose.Yaw},
			Role: Role(p.Role),
		})
	}
	if err := t.Normalize(); err != nil {
		return nil, err
	}
	log.Infof("load topology from %s.%s: %d nodes, %d edges, %d pois",
		coll.Database().Name(), coll.Name(), len(t.Nodes), len(t.Edges), len(t.Pois))
	return t, nil
}

// 先读缓存目录中的副本，缺失时调用load并写回缓存；cacheDir为空时不使用缓存
func LoadWithCache(cacheDir, key string, load func() (*Topology, error)) (*Topology, error) {
	if cacheDir == "" {
		return load()
	}
	path := filepath.Join(cacheDir, key+".yaml")
	if _, err := os.Stat(path); err == nil {
		log.Infof("use cached topology %s", path)
		return LoadFile(path)
	}
	t, err := load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		log.Warnf("failed to create cache dir %s: %v", cacheDir, err)
		return t, nil
	}
	if err := SaveFile(path, t); err != nil {
		log.Warnf("failed to write topology cache %s: %v", path, err)
	}
	return t, nil
}
