package compiler

import (
	"math"

	"github.com/fleetgrid/routing/config"
	"github.com/fleetgrid/routing/topology"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const eps = 1e-9

// 二维仿射变换 [a b tx; c d ty]
type affine struct {
	a, b, c, d float64
	tx, ty     float64
}

// 以origin为原点、x轴方向为theta的局部坐标系到全局坐标系的变换
func frame(origin orb.Point, theta float64) affine {
	cos, sin := math.Cos(theta), math.Sin(theta)
	return affine{a: cos, b: -sin, c: sin, d: cos, tx: origin[0], ty: origin[1]}
}

func (m affine) apply(p orb.Point) orb.Point {
	return orb.Point{m.a*p[0] + m.b*p[1] + m.tx, m.c*p[0] + m.d*p[1] + m.ty}
}

// from指向to的方位角
func bearing(from, to orb.Point) float64 {
	return math.Atan2(to[1]-from[1], to[0]-from[0])
}

// 归一化到[-pi, pi]
func normalizeAngle(a float64) float64 {
	return math.Remainder(a, 2*math.Pi)
}

// 路口出入节点在局部坐标系（x轴指向相邻节点）中的位置
// twoWay按右侧通行左右错开，narrowTwoWay的出口节点靠近路口中心
func stubOffset(t NodeType, way topology.WayType, cfg config.GraphConfig) orb.Point {
	half := cfg.CorridorWidth / 2
	along := cfg.StoppingDistance + half
	switch way {
	case topology.TwoWay:
		if t == NodeIntersectionIn {
			return orb.Point{along, half}
		}
		return orb.Point{along, -half}
	case topology.NarrowTwoWay:
		if t == NodeIntersectionOut {
			return orb.Point{half, 0}
		}
	}
	return orb.Point{along, 0}
}

func pathLength(ls orb.LineString) float64 {
	if len(ls) < 2 {
		return 0
	}
	return planar.Length(ls)
}

// 去掉相邻的重复点
func dedupe(ls orb.LineString) orb.LineString {
	ret := make(orb.LineString, 0, len(ls))
	for _, p := range ls {
		if len(ret) > 0 && planar.Distance(ret[len(ret)-1], p) < eps {
			continue
		}
		ret = append(ret, p)
	}
	return ret
}

func unit(a, b orb.Point) orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := math.Hypot(dx, dy)
	return orb.Point{dx / l, dy / l}
}

// 左法向量
func leftNormal(a, b orb.Point) orb.Point {
	u := unit(a, b)
	return orb.Point{-u[1], u[0]}
}

func offset(p, dir orb.Point, d float64) orb.Point {
	return orb.Point{p[0] + dir[0]*d, p[1] + dir[1]*d}
}

// 沿首末段方向把两端各延长d
func extendEnds(ls orb.LineString, d float64) orb.LineString {
	ret := ls.Clone()
	n := len(ret)
	ret[0] = offset(ret[0], unit(ls[1], ls[0]), d)
	ret[n-1] = offset(ret[n-1], unit(ls[n-2], ls[n-1]), d)
	return ret
}

// 折线向两侧各偏移half得到的闭合外环，平头、斜接，超过miterLimit时改为切角
func bufferLine(ls orb.LineString, half, miterLimit float64) orb.Ring {
	n := len(ls)
	left := make([]orb.Point, 0, n+2)
	right := make([]orb.Point, 0, n+2)
	push := func(p, dir orb.Point, d float64) {
		left = append(left, offset(p, dir, d))
		right = append(right, offset(p, dir, -d))
	}
	for i, p := range ls {
		switch i {
		case 0:
			push(p, leftNormal(ls[0], ls[1]), half)
		case n - 1:
			push(p, leftNormal(ls[n-2], ls[n-1]), half)
		default:
			n1, n2 := leftNormal(ls[i-1], p), leftNormal(p, ls[i+1])
			m := orb.Point{n1[0] + n2[0], n1[1] + n2[1]}
			ml := math.Hypot(m[0], m[1])
			if ml < eps {
				// 原路折返
				push(p, n1, half)
				push(p, n2, half)
				continue
			}
			m = orb.Point{m[0] / ml, m[1] / ml}
			cos := m[0]*n1[0] + m[1]*n1[1]
			if 1/cos > miterLimit {
				push(p, n1, half)
				push(p, n2, half)
				continue
			}
			push(p, m, half/cos)
		}
	}
	ring := make(orb.Ring, 0, 2*len(left)+1)
	ring = append(ring, right...)
	for i := len(left) - 1; i >= 0; i-- {
		ring = append(ring, left[i])
	}
	ring = append(ring, ring[0])
	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}
	return ring
}

// 路径的车道多边形，路径退化为点时返回nil
func corridor(path orb.LineString, cfg config.GraphConfig) orb.Polygon {
	path = dedupe(path)
	if len(path) < 2 {
		return nil
	}
	ext := extendEnds(path, cfg.EndCapLength)
	return orb.Polygon{bufferLine(ext, cfg.CorridorWidth/2, cfg.MiterLimit)}
}
