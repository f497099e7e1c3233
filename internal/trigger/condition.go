package trigger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

// ErrInvalidCondition 规则条件格式非法（比较符未知等）
var ErrInvalidCondition = errors.New("规则条件无效")

// snapshotFields 把快照展开为条件求值用的字段树
func snapshotFields(snap *model.OrganizationalSnapshot) map[string]interface{} {
	dims := map[string]interface{}{}
	for dim, score := range snap.Dimensions {
		if score != nil {
			dims[dim] = *score
		}
	}
	delta := map[string]interface{}{}
	for dim, d := range snap.TrendDelta {
		if d != nil {
			delta[dim] = *d
		}
	}

	fields := map[string]interface{}{
		"tenant_id":  float64(snap.TenantID),
		"dimensions": dims,
		"trend_delta": delta,
	}
	if snap.OverallScore != nil {
		fields["overall_score"] = *snap.OverallScore
	}
	return fields
}

// lookupField 按点路径取字段。未知字段返回 (0, false)，视为不命中而非错误。
func lookupField(fields map[string]interface{}, path string) (float64, bool) {
	current := interface{}(fields)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return 0, false
		}
		current, ok = m[segment]
		if !ok {
			return 0, false
		}
	}

	switch v := current.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// evalCondition 对快照求值一条规则的纯比较条件
func evalCondition(rule *model.TriggerRule, fields map[string]interface{}) (bool, error) {
	value, ok := lookupField(fields, rule.Field)
	if !ok {
		return false, nil
	}

	switch rule.Comparator {
	case model.ComparatorLT:
		return value < rule.Threshold, nil
	case model.ComparatorLTE:
		return value <= rule.Threshold, nil
	case model.ComparatorGT:
		return value > rule.Threshold, nil
	case model.ComparatorGTE:
		return value >= rule.Threshold, nil
	case model.ComparatorEQ:
		return value == rule.Threshold, nil
	case model.ComparatorNEQ:
		return value != rule.Threshold, nil
	default:
		return false, fmt.Errorf("%w: unknown comparator %q", ErrInvalidCondition, rule.Comparator)
	}
}
