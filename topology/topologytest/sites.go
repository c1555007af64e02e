// Package topologytest 提供测试用的场地拓扑
package topologytest

import "github.com/fleetgrid/routing/topology"

// POI id
const (
	DockPoi    = "101" // P1, load-dock，经W1进入、D1离开
	ChargerPoi = "201" // C1, charger，经WD1出入
	ParkingPoi = "301" // K1, parking
	QueuePoi   = "501" // Q1, queue
	LoadPoi    = "401" // L1, load，直接连接路口I2
)

// 包含所有节点角色的场地：
// I1、I2为路口，之间经N1、N2双向连通；
// I1 -> W1 -> P1 -> D1 -> I2 为带等待/离开点的停靠站；
// I2 <-> WD1 <-> C1 为经等待离开点出入的充电站；
// K1(parking)、L1(load)以narrowTwoWay直连路口，Q1(queue)单向连接I1 -> Q1 -> I2。
func SampleSite() *topology.Builder {
	return topology.NewBuilder().
		Node("I1", 0, 0, topology.RoleIntersection).
		Node("I2", 20, 0, topology.RoleIntersection).
		Node("N1", 5, 0, topology.RoleNormal).
		Node("N2", 15, 0, topology.RoleNormal).
		Node("W1", 0, 10, topology.RoleWaiting).
		PoiNode("P1", DockPoi, 5, 10, 0, topology.RoleLoadDock).
		Node("D1", 10, 10, topology.RoleDeparture).
		Node("WD1", 20, -10, topology.RoleWaitingDeparture).
		PoiNode("C1", ChargerPoi, 20, -15, -1.5707963267948966, topology.RoleCharger).
		PoiNode("K1", ParkingPoi, -10, 0, 0, topology.RoleParking).
		PoiNode("Q1", QueuePoi, 10, -5, 0, topology.RoleQueue).
		PoiNode("L1", LoadPoi, 20, 10, 1.5707963267948966, topology.RoleLoad).
		Edge("e01", "I1", "N1", topology.TwoWay).
		Edge("e02", "N1", "N2", topology.TwoWay).
		Edge("e03", "N2", "I2", topology.TwoWay).
		Edge("e04", "I1", "W1", topology.OneWay).
		Edge("e05", "W1", "P1", topology.OneWay).
		Edge("e06", "P1", "D1", topology.OneWay).
		Edge("e07", "D1", "I2", topology.OneWay).
		Edge("e08", "I2", "WD1", topology.TwoWay).
		Edge("e09", "WD1", "C1", topology.NarrowTwoWay).
		Edge("e10", "I1", "K1", topology.NarrowTwoWay).
		Edge("e11", "I1", "Q1", topology.OneWay).
		Edge("e12", "Q1", "I2", topology.OneWay).
		Edge("e13", "I2", "L1", topology.NarrowTwoWay)
}

// 路口X连接一条twoWay(A)、一条驶入的oneWay(B)和一条narrowTwoWay(C)
func ThreeWayIntersection() *topology.Builder {
	return topology.NewBuilder().
		Node("X", 0, 0, topology.RoleIntersection).
		Node("A", 10, 0, topology.RoleIntersection).
		Node("B", 0, 10, topology.RoleIntersection).
		Node("C", -10, 0, topology.RoleIntersection).
		Edge("xa", "X", "A", topology.TwoWay).
		Edge("bx", "B", "X", topology.OneWay).
		Edge("xc", "X", "C", topology.NarrowTwoWay)
}
