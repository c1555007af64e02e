package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"math/rand"

	"connectrpc.com/connect"
	"github.com/fleetgrid/routing/compiler"
	"github.com/fleetgrid/routing/router"
	"github.com/fleetgrid/routing/topology"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var (
	benchmarkCount  = flag.Int("benchmark.count", 1000, "the random plan request count for benchmark")
	benchmarkRobots = flag.Int("benchmark.robots", 20, "the robot count of each plan request")
	benchmarkTasks  = flag.Int("benchmark.tasks", 40, "the task count of each plan request")
	benchmarkSeed   = flag.Int64("benchmark.seed", 0, "the seed for benchmark")
	benchmarkCPU    = flag.Int("benchmark.cpu", 1, "the cpu count for benchmark")
)

// POI对应的完整行为序列
func poiSteps(p *compiler.PoiNodes) []router.Step {
	steps := []router.Step{{Behaviour: compiler.BehaviourGoto, PoiID: p.PoiID}}
	switch p.Section {
	case topology.SectionDockWaitUndock:
		stand := compiler.BehaviourWait
		if p.Role == topology.RoleCharger {
			stand = compiler.BehaviourBatEx
		}
		steps = append(steps,
			router.Step{Behaviour: compiler.BehaviourDock},
			router.Step{Behaviour: stand},
			router.Step{Behaviour: compiler.BehaviourUndock},
		)
	case topology.SectionWaitPOI:
		steps = append(steps, router.Step{Behaviour: compiler.BehaviourWait})
	}
	return steps
}

// 随机生成一轮规划请求：机器人随机停在主路上，任务随机前往各POI，部分机器人带有换电任务
func randomPlanRequest(e *rand.Rand, g *compiler.Graph, swapPrefix string, robots, tasks int) *PlanRequest {
	mains := lo.Filter(g.Edges(), func(edge *compiler.Edge, _ int) bool {
		return edge.Kind == compiler.EdgeMain
	})
	pois := lo.FilterMap(g.PoiIDs(), func(id string, _ int) (*compiler.PoiNodes, bool) {
		return g.Poi(id)
	})
	chargers := lo.Filter(pois, func(p *compiler.PoiNodes, _ int) bool {
		return p.Role == topology.RoleCharger
	})
	req := &PlanRequest{Now: 0}
	for i := 0; i < robots && len(mains) > 0; i++ {
		edge := mains[e.Intn(len(mains))]
		capacity := 20 + e.Float64()*80
		req.Robots = append(req.Robots, &router.Robot{
			ID:         fmt.Sprintf("robot-%d", i),
			Edge:       &router.EdgeRef{From: edge.From, To: edge.To},
			PlanningOn: true,
			Free:       true,
			Battery: router.Battery{
				Capacity: capacity, MaxCapacity: 100,
				DriveUsage: 0.05, StandUsage: 0.02,
			},
		})
		if len(chargers) > 0 && capacity < 40 {
			p := chargers[e.Intn(len(chargers))]
			req.Tasks = append(req.Tasks, &router.Task{
				ID:        fmt.Sprintf("%srobot-%d", swapPrefix, i),
				Steps:     poiSteps(p),
				Index:     -1,
				Status:    router.TaskToDo,
				RobotID:   fmt.Sprintf("robot-%d", i),
				StartTime: e.Float64() * 100,
			})
		}
	}
	for i := 0; i < tasks && len(pois) > 0; i++ {
		p := pois[e.Intn(len(pois))]
		req.Tasks = append(req.Tasks, &router.Task{
			ID:        fmt.Sprintf("task-%d", i),
			Steps:     poiSteps(p),
			Index:     -1,
			Status:    router.TaskToDo,
			StartTime: e.Float64() * 10,
			Priority:  e.Intn(5),
		})
	}
	return req
}

func runBenchmark(server *DispatchServer) {
	log.Logger.SetLevel(logrus.WarnLevel)
	d, err := server.current()
	if err != nil {
		log.Fatalf("benchmark needs a topology: %v", err)
	}
	// 设置随机种子
	e := rand.New(rand.NewSource(*benchmarkSeed))
	// 随机生成benchmarkCount个规划请求
	reqs := make([]*connect.Request[PlanRequest], *benchmarkCount)
	for i := 0; i < *benchmarkCount; i++ {
		in := randomPlanRequest(e, d.Router().Graph(), server.cfg.Dispatch.SwapTaskPrefix, *benchmarkRobots, *benchmarkTasks)
		in.Now = float64(i)
		reqs[i] = connect.NewRequest(in)
	}

	// 开始benchmark
	start := time.Now()
	var wg sync.WaitGroup
	var success atomic.Int32
	run := func(req *connect.Request[PlanRequest]) {
		res, err := server.GetPlan(context.Background(), req)
		if err != nil {
			log.Error("benchmark failed, err:", err)
			return
		}
		if len(res.Msg.Plan) > 0 {
			success.Add(1)
		}
	}
	if *benchmarkCPU == 1 {
		for _, req := range reqs {
			run(req)
		}
	} else {
		// 设置cpu数量
		runtime.GOMAXPROCS(*benchmarkCPU)
		wg.Add(*benchmarkCount)
		for _, req := range reqs {
			go func(req *connect.Request[PlanRequest]) {
				defer wg.Done()
				run(req)
			}(req)
		}
		wg.Wait()
	}
	timeCost := time.Since(start)
	log.Error(
		"benchmark finished", "\n",
		"count:", *benchmarkCount, "\n",
		"time:", timeCost, "\n",
		"avg:", timeCost/time.Duration(max(*benchmarkCount, 1)), "\n",
		"success:", success.Load(), "\n",
	)
}
