package algo

import (
	"errors"
	"math"
)

var (
	// 不可通行的边权
	INF = math.Inf(1)

	// 错误：节点不存在
	ErrNodeNotFound = errors.New("node not found in search graph")
	// 错误：边不存在
	ErrEdgeNotFound = errors.New("edge not found in search graph")
	// 错误：边权为负
	ErrNegativeWeight = errors.New("edge weight should not be negative")
)
