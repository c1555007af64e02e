package topology

import (
	"errors"
	"fmt"
)

var (
	// 拓扑结构错误，编译失败且不会自动重试
	ErrTopology = errors.New("topology error")
)

// 违反的结构规则
type Rule string

const (
	RuleUnknownRole    Rule = "unknown-role"
	RuleUnknownWayType Rule = "unknown-way-type"
	RuleUnknownNode    Rule = "unknown-node"
	RuleOrphanPath     Rule = "orphan-normal-path"
	RuleMixedWayType   Rule = "mixed-way-type"
	RuleInDegree       Rule = "in-degree"
	RuleOutDegree      Rule = "out-degree"
	RuleNeighborRole   Rule = "neighbor-role"
	RuleWayType        Rule = "way-type"
	RulePoiLink        Rule = "poi-link"
	RuleMissingPoi     Rule = "missing-poi-id"
	RuleDuplicatePoi   Rule = "duplicate-poi-id"
)

type TopologyError struct {
	Rule   Rule
	NodeID string
	EdgeID string
	Detail string
}

func (e *TopologyError) Error() string {
	at := ""
	switch {
	case e.NodeID != "":
		at = " at node " + e.NodeID
	case e.EdgeID != "":
		at = " at edge " + e.EdgeID
	}
	return fmt.Sprintf("topology error [%s]%s: %s", e.Rule, at, e.Detail)
}

func (e *TopologyError) Unwrap() error {
	return ErrTopology
}

// 取出err中的违反规则，非拓扑错误时返回空字符串
func RuleOf(err error) Rule {
	var te *TopologyError
	if errors.As(err, &te) {
		return te.Rule
	}
	return ""
}
