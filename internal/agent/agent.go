package agent

import (
	"context"
	"time"

	"github.com/orgpulse/orgpulse_server/internal/consensus"
	"github.com/orgpulse/orgpulse_server/internal/provider"
)

// 支持的分析域
const (
	DomainStructure   = "structure"
	DomainCulture     = "culture"
	DomainSkills      = "skills"
	DomainPerformance = "performance"
)

// RunInput 一次域分析的租户上下文
type RunInput struct {
	TenantID   int64
	Threshold  float64 // 0 使用引擎默认
	Attributes map[string]interface{}
}

// Agent 一个分析域：负责输入整形并经由共识引擎产出结果
type Agent interface {
	Domain() string
	Run(ctx context.Context, in RunInput) (*consensus.Result, error)
}

// Deps 所有域代理共享的依赖
type Deps struct {
	Providers   []provider.Client
	Primary     string
	Threshold   float64
	Tolerance   float64
	CallTimeout time.Duration
}

// DomainAgent 通用域代理，各域通过输入键与一致性函数定制
type DomainAgent struct {
	domain    string
	inputKeys []string // 从主体属性中挑选的键，空表示全量
	agree     consensus.AgreeFunc
	deps      Deps
}

func (a *DomainAgent) Domain() string {
	return a.domain
}

// Run 整形输入后交给共识引擎
func (a *DomainAgent) Run(ctx context.Context, in RunInput) (*consensus.Result, error) {
	threshold := a.deps.Threshold
	if in.Threshold > 0 {
		threshold = in.Threshold
	}

	return consensus.RunDomain(ctx, consensus.Input{
		Domain:      a.domain,
		Payload:     a.shapeInput(in.Attributes),
		Providers:   a.deps.Providers,
		Primary:     a.deps.Primary,
		Threshold:   threshold,
		Agree:       a.agree,
		CallTimeout: a.deps.CallTimeout,
	})
}

// shapeInput 只保留本域关心的属性键
func (a *DomainAgent) shapeInput(attrs map[string]interface{}) map[string]interface{} {
	if len(a.inputKeys) == 0 {
		return attrs
	}

	shaped := make(map[string]interface{}, len(a.inputKeys))
	for _, key := range a.inputKeys {
		if v, ok := attrs[key]; ok {
			shaped[key] = v
		}
	}
	return shaped
}

// NewStructure 组织结构域：汇报层级、管理幅度
func NewStructure(deps Deps) *DomainAgent {
	return &DomainAgent{
		domain:    DomainStructure,
		inputKeys: []string{"org_chart", "headcount", "reporting_depth", "span_of_control"},
		agree:     consensus.NumericAgree(deps.Tolerance),
		deps:      deps,
	}
}

// NewCulture 文化域：结论以分类为主，数值为辅
func NewCulture(deps Deps) *DomainAgent {
	return &DomainAgent{
		domain:    DomainCulture,
		inputKeys: []string{"survey_results", "values", "engagement", "turnover_rate"},
		agree:     consensus.CategoricalAgree(deps.Tolerance),
		deps:      deps,
	}
}

// NewSkills 技能覆盖域
func NewSkills(deps Deps) *DomainAgent {
	return &DomainAgent{
		domain:    DomainSkills,
		inputKeys: []string{"skill_matrix", "roles", "open_positions", "learning_completions"},
		agree:     consensus.NumericAgree(deps.Tolerance),
		deps:      deps,
	}
}

// NewPerformance 绩效域
func NewPerformance(deps Deps) *DomainAgent {
	return &DomainAgent{
		domain:    DomainPerformance,
		inputKeys: []string{"okr_attainment", "review_scores", "delivery_metrics"},
		agree:     consensus.NumericAgree(deps.Tolerance),
		deps:      deps,
	}
}

// AllDomains 内置域的固定顺序
func AllDomains() []string {
	return []string{DomainStructure, DomainCulture, DomainSkills, DomainPerformance}
}

// Registry 按域名索引的代理集合
type Registry map[string]Agent

// NewRegistry 构建全部内置域代理
func NewRegistry(deps Deps) Registry {
	agents := []Agent{
		NewStructure(deps),
		NewCulture(deps),
		NewSkills(deps),
		NewPerformance(deps),
	}

	reg := make(Registry, len(agents))
	for _, a := range agents {
		reg[a.Domain()] = a
	}
	return reg
}
