package snapshot

import (
	"errors"
	"fmt"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

// ErrRunNotTerminal 运行未到终态，不能构建快照
var ErrRunNotTerminal = errors.New("运行尚未结束，无法构建快照")

// 域 → 规范维度
var domainDimensions = map[string]string{
	"structure":   model.DimStructureHealth,
	"culture":     model.DimCultureAlignment,
	"skills":      model.DimSkillsCoverage,
	"performance": model.DimPerformanceIndex,
}

// 固定的维度权重表，对存在的维度集合重新归一化
var dimensionWeights = map[string]float64{
	model.DimStructureHealth:  0.30,
	model.DimCultureAlignment: 0.25,
	model.DimSkillsCoverage:   0.25,
	model.DimPerformanceIndex: 0.20,
}

// 固定维度顺序，保证要点输出确定
var dimensionOrder = []string{
	model.DimStructureHealth,
	model.DimCultureAlignment,
	model.DimSkillsCoverage,
	model.DimPerformanceIndex,
}

// Build 将一次终态运行规范化为组织快照。
// 纯函数：不修改运行，也不触达外部服务；同一输入两次调用产出一致。
// 缺失或低置信的域贡献 null 维度，总分只在存在的维度上加权。
func Build(run *model.AnalysisRun, prior *model.OrganizationalSnapshot) (*model.OrganizationalSnapshot, error) {
	if run == nil {
		return nil, errors.New("run is nil")
	}
	if !run.Terminal() {
		return nil, ErrRunNotTerminal
	}

	dims := model.ScoreMap{}
	for _, dim := range dimensionOrder {
		dims[dim] = nil
	}
	for domain, dim := range domainDimensions {
		if run.DomainStatuses[domain] != model.DomainStatusOK {
			continue
		}
		if score, ok := extractScore(run.RawResults[domain]); ok {
			s := score
			dims[dim] = &s
		}
	}

	delta := computeDelta(dims, prior)
	snap := &model.OrganizationalSnapshot{
		TenantID:     run.TenantID,
		SourceRunID:  run.ID,
		OverallScore: weightedOverall(dims),
		Dimensions:   dims,
		TrendDelta:   delta,
		Highlights:   buildHighlights(dims, delta),
	}
	return snap, nil
}

// extractScore 从域原始结果中取主提供商得分
func extractScore(raw interface{}) (float64, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch v := m["score"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// weightedOverall 仅对存在的维度加权，权重按存在集合归一化；
// 全部缺失时总分为 nil
func weightedOverall(dims model.ScoreMap) *float64 {
	totalWeight := 0.0
	weighted := 0.0
	for dim, score := range dims {
		if score == nil {
			continue
		}
		w := dimensionWeights[dim]
		totalWeight += w
		weighted += *score * w
	}
	if totalWeight == 0 {
		return nil
	}
	overall := weighted / totalWeight
	return &overall
}

// computeDelta 与上一快照逐维比较；无上一快照时各维为 null
func computeDelta(dims model.ScoreMap, prior *model.OrganizationalSnapshot) model.ScoreMap {
	delta := model.ScoreMap{}
	for _, dim := range dimensionOrder {
		delta[dim] = nil
		if prior == nil {
			continue
		}
		current := dims[dim]
		previous := prior.Dimensions[dim]
		if current == nil || previous == nil {
			continue
		}
		d := *current - *previous
		delta[dim] = &d
	}
	return delta
}

// buildHighlights 基于维度与增量的简单阈值规则，确定性输出，无外部调用
func buildHighlights(dims, delta model.ScoreMap) model.StringArray {
	highlights := model.StringArray{}
	for _, dim := range dimensionOrder {
		if d := delta[dim]; d != nil {
			if *d < -10 {
				highlights = append(highlights, fmt.Sprintf("%s 较上期下降 %.1f 分", dim, -*d))
			} else if *d > 10 {
				highlights = append(highlights, fmt.Sprintf("%s 较上期上升 %.1f 分", dim, *d))
			}
		}
		if s := dims[dim]; s != nil && *s < 40 {
			highlights = append(highlights, fmt.Sprintf("%s 处于临界水平（%.1f）", dim, *s))
		}
	}
	return highlights
}
