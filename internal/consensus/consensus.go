package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/orgpulse/orgpulse_server/internal/provider"
)

// ErrProviderUnavailable 所有提供商均失败，不伪造结果
var ErrProviderUnavailable = errors.New("所有提供商不可用")

// LowConfidenceError 共识分低于阈值。携带全部原始响应，
// 由调用方决定继续、标记复核或失败，绝不静默取多数。
type LowConfidenceError struct {
	Domain    string
	Score     float64 // 实际共识分
	Threshold float64
	Responses []*provider.Response
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("domain %s consensus %.2f below threshold %.2f (%d responses)",
		e.Domain, e.Score, e.Threshold, len(e.Responses))
}

// AgreeFunc 判定两个响应是否一致，由各域注入
type AgreeFunc func(a, b *provider.Response) bool

// NumericAgree 数值得分距离在容差内即一致
func NumericAgree(tolerance float64) AgreeFunc {
	return func(a, b *provider.Response) bool {
		return math.Abs(a.Score-b.Score) <= tolerance
	}
}

// CategoricalAgree 分类结论一致即一致；任一方无分类时退回数值容差
func CategoricalAgree(tolerance float64) AgreeFunc {
	numeric := NumericAgree(tolerance)
	return func(a, b *provider.Response) bool {
		if a.Category != "" && b.Category != "" {
			return a.Category == b.Category
		}
		return numeric(a, b)
	}
}

// Input 一次域共识调用的全部参数，无隐藏实例状态
type Input struct {
	Domain      string
	Payload     map[string]interface{}
	Providers   []provider.Client
	Primary     string // 共识达成后采用该提供商的响应
	Threshold   float64
	Agree       AgreeFunc
	CallTimeout time.Duration
}

// Result 达成共识的域结果
type Result struct {
	Domain         string
	Response       *provider.Response   // 主提供商响应（主提供商失败时取首个成功响应）
	MergedScore    float64              // 成功响应得分均值
	ConsensusScore float64              // 两两一致对的占比
	Responses      []*provider.Response // 全部成功响应
}

// RunDomain 并发调用全部提供商并计算两两共识。
// 出错或超时的调用被排除出共识，不算作反对票。
func RunDomain(ctx context.Context, in Input) (*Result, error) {
	if len(in.Providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if in.Agree == nil {
		in.Agree = NumericAgree(5.0)
	}
	if in.CallTimeout <= 0 {
		in.CallTimeout = 30 * time.Second
	}

	type callResult struct {
		resp *provider.Response
		err  error
	}

	results := make([]callResult, len(in.Providers))
	var wg sync.WaitGroup
	for i, p := range in.Providers {
		wg.Add(1)
		go func(i int, p provider.Client) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, in.CallTimeout)
			defer cancel()
			resp, err := p.Call(callCtx, in.Domain, in.Payload)
			results[i] = callResult{resp: resp, err: err}
		}(i, p)
	}
	wg.Wait()

	var responses []*provider.Response
	var callErrs []error
	for _, r := range results {
		if r.err != nil {
			callErrs = append(callErrs, r.err)
			continue
		}
		responses = append(responses, r.resp)
	}

	if len(responses) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, errors.Join(callErrs...))
	}

	score := pairwiseScore(responses, in.Agree)
	if score < in.Threshold {
		return nil, &LowConfidenceError{
			Domain:    in.Domain,
			Score:     score,
			Threshold: in.Threshold,
			Responses: responses,
		}
	}

	chosen := responses[0]
	for _, resp := range responses {
		if resp.Provider == in.Primary {
			chosen = resp
			break
		}
	}

	return &Result{
		Domain:         in.Domain,
		Response:       chosen,
		MergedScore:    meanScore(responses),
		ConsensusScore: score,
		Responses:      responses,
	}, nil
}

// pairwiseScore 两两一致对占所有对的比例。
// 单个成功响应没有对可比，视为完全一致。
func pairwiseScore(responses []*provider.Response, agree AgreeFunc) float64 {
	n := len(responses)
	if n < 2 {
		return 1.0
	}

	pairs, agreed := 0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs++
			if agree(responses[i], responses[j]) {
				agreed++
			}
		}
	}
	return float64(agreed) / float64(pairs)
}

func meanScore(responses []*provider.Response) float64 {
	sum := 0.0
	for _, r := range responses {
		sum += r.Score
	}
	return sum / float64(len(responses))
}
