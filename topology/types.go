package topology

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// 节点角色
type Role string

const (
	RoleCharger          Role = "charger"
	RoleLoad             Role = "load"
	RoleUnload           Role = "unload"
	RoleLoadUnload       Role = "load-unload"
	RoleLoadDock         Role = "load-dock"
	RoleUnloadDock       Role = "unload-dock"
	RoleLoadUnloadDock   Role = "load-unload-dock"
	RoleWaiting          Role = "waiting"
	RoleDeparture        Role = "departure"
	RoleWaitingDeparture Role = "waiting-departure"
	RoleParking          Role = "parking"
	RoleQueue            Role = "queue"
	RoleNormal           Role = "normal"
	RoleIntersection     Role = "intersection"
)

// 节点展开方式
type SectionType string

const (
	SectionDockWaitUndock SectionType = "dockWaitUndock"
	SectionWaitPOI        SectionType = "waitPOI"
	SectionNoChanges      SectionType = "noChanges"
	SectionNormal         SectionType = "normal"
	SectionIntersection   SectionType = "intersection"
)

type roleInfo struct {
	section SectionType
	stand   bool // 是否是停靠点（load/unload/charger）
}

var roles = map[Role]roleInfo{
	RoleCharger:          {SectionDockWaitUndock, true},
	RoleLoadDock:         {SectionDockWaitUndock, true},
	RoleUnloadDock:       {SectionDockWaitUndock, true},
	RoleLoadUnloadDock:   {SectionDockWaitUndock, true},
	RoleLoad:             {SectionWaitPOI, true},
	RoleUnload:           {SectionWaitPOI, true},
	RoleLoadUnload:       {SectionWaitPOI, true},
	RoleWaiting:          {SectionNoChanges, false},
	RoleDeparture:        {SectionNoChanges, false},
	RoleParking:          {SectionNoChanges, false},
	RoleQueue:            {SectionNoChanges, false},
	RoleWaitingDeparture: {SectionIntersection, false},
	RoleIntersection:     {SectionIntersection, false},
	RoleNormal:           {SectionNormal, false},
}

func (r Role) Valid() bool {
	_, ok := roles[r]
	return ok
}

func (r Role) Section() SectionType {
	return roles[r].section
}

// 是否是POI停靠点（dockWaitUndock或waitPOI）
func (r Role) IsStand() bool {
	return roles[r].stand
}

// 道路类型
type WayType string

const (
	OneWay       WayType = "oneWay"
	TwoWay       WayType = "twoWay"
	NarrowTwoWay WayType = "narrowTwoWay"
)

func (w WayType) Valid() bool {
	return w == OneWay || w == TwoWay || w == NarrowTwoWay
}

func (w WayType) Bidirectional() bool {
	return w == TwoWay || w == NarrowTwoWay
}

// 无POI时的PoiID
const NoPoi = "0"

type BaseNode struct {
	ID    string    `yaml:"-" json:"id"`
	Pos   orb.Point `yaml:"position" json:"position"`
	Role  Role      `yaml:"role" json:"role"`
	PoiID string    `yaml:"poi_id" json:"poi_id"`
}

func (n *BaseNode) HasPoi() bool {
	return n.PoiID != "" && n.PoiID != NoPoi
}

type BaseEdge struct {
	ID      string  `yaml:"-" json:"id"`
	Start   string  `yaml:"start_node" json:"start_node"`
	End     string  `yaml:"end_node" json:"end_node"`
	WayType WayType `yaml:"way_type" json:"way_type"`
	// 缺省为true，false表示车道物理封闭
	Active *bool `yaml:"is_active,omitempty" json:"is_active,omitempty"`
}

func (e *BaseEdge) IsActive() bool {
	return e.Active == nil || *e.Active
}

type Pose struct {
	Pos orb.Point `yaml:"position" json:"position"`
	Yaw float64   `yaml:"yaw" json:"yaw"`
}

type Poi struct {
	ID   string `yaml:"id" json:"id"`
	Pose Pose   `yaml:"pose" json:"pose"`
	Role Role   `yaml:"role" json:"role"`
}

// 人工编辑的场地拓扑
type Topology struct {
	Nodes map[string]*BaseNode `yaml:"nodes" json:"nodes"`
	Edges map[string]*BaseEdge `yaml:"edges" json:"edges"`
	Pois  []*Poi               `yaml:"pois" json:"pois"`
}

// 填充id字段并检查枚举取值
func (t *Topology) Normalize() error {
	if t.Nodes == nil {
		t.Nodes = make(map[string]*BaseNode)
	}
	if t.Edges == nil {
		t.Edges = make(map[string]*BaseEdge)
	}
	for id, n := range t.Nodes {
		n.ID = id
		if !n.Role.Valid() {
			return &TopologyError{Rule: RuleUnknownRole, NodeID: id, Detail: fmt.Sprintf("role %q", n.Role)}
		}
		if n.PoiID == "" {
			n.PoiID = NoPoi
		}
	}
	for id, e := range t.Edges {
		e.ID = id
		if !e.WayType.Valid() {
			return &TopologyError{Rule: RuleUnknownWayType, EdgeID: id, Detail: fmt.Sprintf("way type %q", e.WayType)}
		}
	}
	for _, p := range t.Pois {
		if p.Role != "" && !p.Role.Valid() {
			return &TopologyError{Rule: RuleUnknownRole, Detail: fmt.Sprintf("poi %s role %q", p.ID, p.Role)}
		}
	}
	return nil
}

func (t *Topology) NodeIDs() []string {
	ids := lo.Keys(t.Nodes)
	sort.Strings(ids)
	return ids
}

func (t *Topology) EdgeIDs() []string {
	ids := lo.Keys(t.Edges)
	sort.Strings(ids)
	return ids
}

// POI表，按id索引
func (t *Topology) PoiIndex() map[string]*Poi {
	return lo.Associate(t.Pois, func(p *Poi) (string, *Poi) {
		return p.ID, p
	})
}
