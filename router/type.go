package router

import (
	"strings"

	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/topology"
)

// 有向边引用
type EdgeRef struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// 任务状态
type TaskStatus string

const (
	TaskToDo       TaskStatus = "TO_DO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

// 任务中的一步行为，dock/wait/undock/bat_ex的PoiID为空时沿用之前最近一次goto的目标
type Step struct {
	Behaviour compiler.Behaviour `json:"behaviour"`
	PoiID     string             `json:"poi_id,omitempty"`
}

type Task struct {
	ID    string `json:"id"`
	Steps []Step `json:"behaviours"`
	// 当前执行的行为下标，-1表示尚未开始
	Index     int        `json:"current_behaviour_index"`
	Status    TaskStatus `json:"status"`
	RobotID   string     `json:"robot_id,omitempty"`
	StartTime float64    `json:"start_time"`
	Weight    float64    `json:"weight"`
	Priority  int        `json:"priority"`
}

// 当前应执行的行为下标
func (t *Task) CurrentIndex() int {
	return max(t.Index, 0)
}

func (t *Task) Finished() bool {
	return t.CurrentIndex() >= len(t.Steps)
}

// 第i步行为所在的POI
func (t *Task) PoiAt(i int) string {
	for ; i >= 0; i-- {
		if i < len(t.Steps) && t.Steps[i].PoiID != "" {
			return t.Steps[i].PoiID
		}
	}
	return topology.NoPoi
}

// 任务的首个goto目标
func (t *Task) TargetPoi() string {
	for _, s := range t.Steps {
		if s.Behaviour == compiler.BehaviourGoto {
			return s.PoiID
		}
	}
	return t.PoiAt(len(t.Steps) - 1)
}

// 换电任务通过id前缀识别
func (t *Task) IsSwap(prefix string) bool {
	return strings.HasPrefix(t.ID, prefix)
}

type Battery struct {
	Capacity    float64 `json:"capacity"`
	MaxCapacity float64 `json:"max_capacity"`
	// 每秒行驶耗电
	DriveUsage float64 `json:"drive_usage"`
	// 每秒停靠作业耗电
	StandUsage        float64 `json:"stand_usage"`
	RemainingWorkTime float64 `json:"remaining_work_time"`
}

// 低于该电量时必须换电
func (b Battery) Critical(level float64) float64 {
	return b.MaxCapacity * level
}

// 行驶drive秒、停靠stand秒后的剩余电量
func (b Battery) Projected(drive, stand float64) float64 {
	return b.Capacity - drive*b.DriveUsage - stand*b.StandUsage
}

type Robot struct {
	ID string `json:"id"`
	// 当前所在的边，nil表示不在任何边上
	Edge          *EdgeRef `json:"current_edge"`
	PlanningOn    bool     `json:"planning_on"`
	Free          bool     `json:"is_free"`
	TimeRemaining float64  `json:"time_remaining"`
	PoiID         string   `json:"poi_id,omitempty"`
	Battery       Battery  `json:"battery"`

	// 以下由调度填写
	Task          *Task    `json:"-"`
	NextEdge      *EdgeRef `json:"-"`
	BehaviourDone bool     `json:"-"`
}
