// Package enhancer 在生成文档前用聊天模型润色简历中的自由文本
package enhancer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-builder/internal/logger"
	"resume-builder/internal/ratelimit"
	"resume-builder/internal/tracing"
	"resume-builder/internal/types"
)

var tracer = otel.Tracer("resume-builder/enhancer")

// DefaultTimeout 单次润色的默认超时
const DefaultTimeout = 20 * time.Second

// ErrMalformedOutput 模型输出无法解析为润色结果
var ErrMalformedOutput = errors.New("润色结果格式错误")

const defaultSystemPrompt = `You polish the free-text parts of a resume before it is printed.
Reply with a single JSON object and nothing else, shaped as:
{"summary": string, "projects": [{"description": string}], "experience": [{"description": string}]}
- summary: a professional summary of 3-4 sentences based on the given summary and title.
- projects / experience: one entry per input entry, in the same order, with a clearer and more detailed description.
Never invent employers, dates, degrees, numbers or technologies that the input does not mention.`

// Enhancer 基于聊天模型的简历润色器。只改写摘要、项目描述和工作描述，
// 姓名、公司、时间等事实字段始终保留原值
type Enhancer struct {
	model        model.ToolCallingChatModel
	limiter      *ratelimit.TokenBucket
	systemPrompt string
	timeout      time.Duration
}

// Option 润色器的可选配置
type Option func(*Enhancer)

// WithRateLimiter 设置模型调用限流器
func WithRateLimiter(tb *ratelimit.TokenBucket) Option {
	return func(e *Enhancer) {
		e.limiter = tb
	}
}

// WithTimeout 设置单次润色超时
func WithTimeout(d time.Duration) Option {
	return func(e *Enhancer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New 创建润色器
func New(m model.ToolCallingChatModel, opts ...Option) *Enhancer {
	e := &Enhancer{model: m, systemPrompt: defaultSystemPrompt, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type enhancedEntry struct {
	Description string `json:"description"`
}

type enhancedResume struct {
	Summary    string          `json:"summary"`
	Projects   []enhancedEntry `json:"projects"`
	Experience []enhancedEntry `json:"experience"`
}

type promptInput struct {
	Title      string             `json:"title"`
	Summary    string             `json:"summary"`
	Projects   []types.Project    `json:"projects"`
	Experience []types.Experience `json:"experience"`
}

// Enhance 返回润色后的副本，不修改输入。出错时返回原简历和错误
func (e *Enhancer) Enhance(ctx context.Context, r types.Resume) (types.Resume, error) {
	if r.Summary == "" && len(r.Projects) == 0 && len(r.Experience) == 0 {
		return r, nil
	}

	ctx, span := tracer.Start(ctx, "enhancer.Enhance")
	defer span.End()
	span.SetAttributes(
		attribute.Int("resume.projects", len(r.Projects)),
		attribute.Int("resume.experience", len(r.Experience)),
	)

	input, err := json.Marshal(promptInput{
		Title:      r.Title,
		Summary:    r.Summary,
		Projects:   r.Projects,
		Experience: r.Experience,
	})
	if err != nil {
		return r, fmt.Errorf("序列化润色输入失败: %w", err)
	}
	messages := []*schema.Message{
		schema.SystemMessage(e.systemPrompt),
		schema.UserMessage(string(input)),
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var resp *schema.Message
	call := func() error {
		var err error
		resp, err = e.model.Generate(ctx, messages)
		return err
	}
	if e.limiter != nil {
		err = e.limiter.RetryWithBackoff(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return r, fmt.Errorf("调用模型润色简历失败: %w", err)
	}

	out, err := parseOutput(resp.Content)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		logger.Debug().Err(err).Str("content", tracing.TruncateString(resp.Content, 200)).Msg("润色结果无法解析")
		return r, err
	}
	return merge(r, out), nil
}

func parseOutput(content string) (enhancedResume, error) {
	var out enhancedResume
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return out, fmt.Errorf("%w: 模型输出中没有 JSON 对象", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}

// merge 按位置合并描述。条目数量与原简历不一致时整段保留原值
func merge(r types.Resume, out enhancedResume) types.Resume {
	if s := strings.TrimSpace(out.Summary); s != "" && r.Summary != "" {
		r.Summary = s
	}

	if len(out.Projects) == len(r.Projects) {
		projects := make([]types.Project, len(r.Projects))
		copy(projects, r.Projects)
		for i, p := range out.Projects {
			if d := strings.TrimSpace(p.Description); d != "" {
				projects[i].Description = d
			}
		}
		r.Projects = projects
	}

	if len(out.Experience) == len(r.Experience) {
		experience := make([]types.Experience, len(r.Experience))
		copy(experience, r.Experience)
		for i, x := range out.Experience {
			if d := strings.TrimSpace(x.Description); d != "" {
				experience[i].Description = d
			}
		}
		r.Experience = experience
	}
	return r
}
