package scheduler

import (
	"fmt"
	"time"

	"github.com/orgpulse/orgpulse_server/internal/model"
)

// Signal 重分析信号求值器，返回是否命中及命中原因。
// 求值是纯函数，不做任何持久化。
type Signal func(subject *model.Subject, now time.Time) (bool, string)

// StalenessSignal 距上次分析超过 maxDays 天（从未分析视为过期）
func StalenessSignal(maxDays int) Signal {
	return func(subject *model.Subject, now time.Time) (bool, string) {
		if subject.LastAnalyzedAt == nil {
			return true, "never analyzed"
		}
		age := now.Sub(*subject.LastAnalyzedAt)
		if age > time.Duration(maxDays)*24*time.Hour {
			return true, fmt.Sprintf("last analysis older than %d days", maxDays)
		}
		return false, ""
	}
}

// RoleChangeSignal 上次分析之后角色或岗位发生变更
func RoleChangeSignal() Signal {
	return func(subject *model.Subject, now time.Time) (bool, string) {
		if subject.RoleChangedAt == nil {
			return false, ""
		}
		if subject.LastAnalyzedAt == nil || subject.RoleChangedAt.After(*subject.LastAnalyzedAt) {
			return true, fmt.Sprintf("role changed to %s", subject.Role)
		}
		return false, ""
	}
}

// StrategyChangeSignal 上游策略版本相对分析基线发生变化
func StrategyChangeSignal() Signal {
	return func(subject *model.Subject, now time.Time) (bool, string) {
		if subject.LastAnalyzedAt == nil {
			return false, ""
		}
		if subject.StrategyVersion != subject.AnalyzedStrategyVersion {
			return true, fmt.Sprintf("strategy version %d -> %d",
				subject.AnalyzedStrategyVersion, subject.StrategyVersion)
		}
		return false, ""
	}
}

// LearningSignal 相对分析基线累计完成学习数达到阈值
func LearningSignal(threshold int) Signal {
	return func(subject *model.Subject, now time.Time) (bool, string) {
		if subject.LastAnalyzedAt == nil {
			return false, ""
		}
		delta := subject.CompletedLearningCount - subject.AnalyzedLearningCount
		if delta >= threshold {
			return true, fmt.Sprintf("%d learning completions since last analysis", delta)
		}
		return false, ""
	}
}
