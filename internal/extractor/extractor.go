// Package extractor 把自由文本回答转换为类型化的简历字段
package extractor

import (
	"context"
	"errors"

	"resume-builder/internal/logger"
	"resume-builder/internal/types"
)

// ErrUnrecognized 无法从回答中识别出期望字段
var ErrUnrecognized = errors.New("无法识别回答内容")

// Extractor 字段提取能力。
// 返回的答案集合至少包含期望字段，也可以同时包含从同一回答中识别出的其他字段。
type Extractor interface {
	Extract(ctx context.Context, text string, field types.FieldID) (types.Answers, error)
}

// Func 函数适配器
type Func func(ctx context.Context, text string, field types.FieldID) (types.Answers, error)

// Extract 实现 Extractor
func (f Func) Extract(ctx context.Context, text string, field types.FieldID) (types.Answers, error) {
	return f(ctx, text, field)
}

// Hybrid 先用规则提取，规则无法识别时再交给模型
type Hybrid struct {
	primary  Extractor
	fallback Extractor
}

var _ Extractor = (*Hybrid)(nil)

// NewHybrid 创建组合提取器，fallback 为 nil 时等价于 primary
func NewHybrid(primary, fallback Extractor) *Hybrid {
	return &Hybrid{primary: primary, fallback: fallback}
}

// Extract 实现 Extractor
func (h *Hybrid) Extract(ctx context.Context, text string, field types.FieldID) (types.Answers, error) {
	answers, err := h.primary.Extract(ctx, text, field)
	if err == nil || h.fallback == nil || !errors.Is(err, ErrUnrecognized) {
		return answers, err
	}

	logger.Debug().Str("field", string(field)).Msg("规则提取未识别，回退到模型提取")
	return h.fallback.Extract(ctx, text, field)
}

// sanitize 过滤未知字段和空值，并确认期望字段存在
func sanitize(answers types.Answers, field types.FieldID) (types.Answers, error) {
	out := make(types.Answers, len(answers))
	for f, v := range answers {
		if !f.Valid() || v.IsZero() {
			continue
		}
		out[f] = v
	}
	if !out.Has(field) {
		return nil, ErrUnrecognized
	}
	return out, nil
}
