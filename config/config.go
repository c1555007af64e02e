package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// 调度服务配置，包含图编译和调度两部分
type Config struct {
	Graph    GraphConfig    `yaml:"graph"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// 图编译参数
type GraphConfig struct {
	// 车道宽度（米）
	CorridorWidth float64 `yaml:"corridor_width"`
	// 路口停车距离（米）
	StoppingDistance float64 `yaml:"stopping_distance"`
	// 机器人车身长度（米）
	RobotLength float64 `yaml:"robot_length"`
	// 机器人速度（米/秒）
	RobotSpeed float64 `yaml:"robot_speed"`
	// 车道多边形两端延伸长度（米）
	EndCapLength float64 `yaml:"end_cap_length"`
	// 斜接长度上限，超过时截断为平角
	MiterLimit float64 `yaml:"miter_limit"`

	// 固定行为用时（秒）
	DockWeight   float64 `yaml:"dock_weight"`
	UndockWeight float64 `yaml:"undock_weight"`
	WaitWeight   float64 `yaml:"wait_weight"`
	BatExWeight  float64 `yaml:"bat_ex_weight"`
}

// 任务排序方式
const (
	OrderByPriority  = "priority"
	OrderByStartTime = "start_time"
)

// 调度参数
type DispatchConfig struct {
	// 电量低于 max_capacity*critical_battery_level 时强制换电
	CriticalBatteryLevel float64 `yaml:"critical_battery_level"`
	// 换电任务id前缀
	SwapTaskPrefix string `yaml:"swap_task_prefix"`
	// 待分配任务排序方式 [priority, start_time]
	TaskOrder string `yaml:"task_order"`
}

func Defaults() *Config {
	return &Config{
		Graph: GraphConfig{
			CorridorWidth:    1.0,
			StoppingDistance: 0.5,
			RobotLength:      1.2,
			RobotSpeed:       1.0,
			EndCapLength:     0.1,
			MiterLimit:       4,
			DockWeight:       10,
			UndockWeight:     10,
			WaitWeight:       30,
			BatExWeight:      120,
		},
		Dispatch: DispatchConfig{
			CriticalBatteryLevel: 0.15,
			SwapTaskPrefix:       "bat_ex_",
			TaskOrder:            OrderByPriority,
		},
	}
}

// 从yaml文件加载配置，文件中未给出的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	g := c.Graph
	if g.CorridorWidth <= 0 || g.RobotLength <= 0 || g.RobotSpeed <= 0 {
		return fmt.Errorf("config: corridor_width, robot_length and robot_speed must be positive")
	}
	if g.StoppingDistance < 0 || g.EndCapLength < 0 {
		return fmt.Errorf("config: stopping_distance and end_cap_length must not be negative")
	}
	if g.DockWeight < 0 || g.UndockWeight < 0 || g.WaitWeight < 0 || g.BatExWeight < 0 {
		return fmt.Errorf("config: behaviour weights must not be negative")
	}
	d := c.Dispatch
	if d.CriticalBatteryLevel < 0 || d.CriticalBatteryLevel > 1 {
		return fmt.Errorf("config: critical_battery_level %v out of [0,1]", d.CriticalBatteryLevel)
	}
	if d.SwapTaskPrefix == "" {
		return fmt.Errorf("config: swap_task_prefix is empty")
	}
	switch d.TaskOrder {
	case OrderByPriority, OrderByStartTime:
	default:
		return fmt.Errorf("config: unknown task_order %q", d.TaskOrder)
	}
	return nil
}
