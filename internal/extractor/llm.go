package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"resume-builder/internal/logger"
	"resume-builder/internal/ratelimit"
	"resume-builder/internal/tracing"
	"resume-builder/internal/types"
)

var llmTracer = otel.Tracer("resume-builder/extractor/llm")

const defaultSystemPrompt = `You extract structured resume data from one answer given in a resume interview.
Reply with a single JSON object and nothing else.
Keys are field identifiers; include the expected field and any other field the answer states explicitly.
Value formats:
- name, title, phone, email, location, summary, education, education_location, education_degree, education_years, education_grade: string
- skills, languages: array of strings, in the order given
- projects: array of {"name": string, "description": string}
- experience: array of {"title": string, "company": string, "duration": string, "description": string}
- certifications: array of {"title": string, "issuer": string, "date": string}
If the answer does not contain the expected field, reply with {"unrecognized": true}.`

// LLM 基于聊天模型的提取器，适合格式自由的回答
type LLM struct {
	model        model.ToolCallingChatModel
	limiter      *ratelimit.TokenBucket
	systemPrompt string
}

var _ Extractor = (*LLM)(nil)

// LLMOption LLM 提取器的可选配置
type LLMOption func(*LLM)

// WithRateLimiter 设置模型调用限流器
func WithRateLimiter(tb *ratelimit.TokenBucket) LLMOption {
	return func(e *LLM) {
		e.limiter = tb
	}
}

// WithSystemPrompt 替换默认的系统提示词
func WithSystemPrompt(prompt string) LLMOption {
	return func(e *LLM) {
		if strings.TrimSpace(prompt) != "" {
			e.systemPrompt = prompt
		}
	}
}

// NewLLM 创建模型提取器
func NewLLM(m model.ToolCallingChatModel, opts ...LLMOption) *LLM {
	e := &LLM{model: m, systemPrompt: defaultSystemPrompt}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 实现 Extractor。模型调用失败、返回无法解析或缺少期望字段时均返回 ErrUnrecognized
func (e *LLM) Extract(ctx context.Context, text string, field types.FieldID) (types.Answers, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrUnrecognized
	}

	ctx, span := llmTracer.Start(ctx, "extractor.LLM.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("resume.field", string(field)),
		attribute.String("resume.answer", tracing.SafeAttributeValue(string(field), text, tracing.MaxAnswerLength)),
	)

	messages := []*schema.Message{
		schema.SystemMessage(e.systemPrompt),
		schema.UserMessage(fmt.Sprintf("Expected field: %s\nAnswer: %s", field, text)),
	}

	var resp *schema.Message
	call := func() error {
		var err error
		resp, err = e.model.Generate(ctx, messages)
		return err
	}

	var err error
	if e.limiter != nil {
		err = e.limiter.RetryWithBackoff(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		logger.Warn().Err(err).Str("field", string(field)).Msg("模型提取调用失败")
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	answers, err := parseModelOutput(resp.Content)
	if err != nil {
		logger.Debug().Err(err).Str("content", tracing.TruncateString(resp.Content, 200)).Msg("模型输出无法解析")
		return nil, err
	}
	return sanitize(answers, field)
}

// parseModelOutput 从模型输出中截取 JSON 对象并按字段类型解码
func parseModelOutput(content string) (types.Answers, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: 模型输出中没有 JSON 对象", ErrUnrecognized)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	if flag, ok := raw["unrecognized"]; ok && string(flag) == "true" {
		return nil, ErrUnrecognized
	}

	answers := make(types.Answers, len(raw))
	for key, msg := range raw {
		field := types.FieldID(key)
		v, err := decodeValue(field, msg)
		if err != nil {
			logger.Debug().Err(err).Str("field", key).Msg("忽略无法解码的字段")
			continue
		}
		answers[field] = v
	}
	return answers, nil
}

var errUnsupportedField = errors.New("未知字段")

func decodeValue(field types.FieldID, msg json.RawMessage) (types.Value, error) {
	var v types.Value
	var err error
	switch field.Kind() {
	case types.KindText:
		var s string
		err = json.Unmarshal(msg, &s)
		v.Text = strings.TrimSpace(s)
	case types.KindList:
		err = json.Unmarshal(msg, &v.Items)
	case types.KindProjects:
		err = json.Unmarshal(msg, &v.Projects)
	case types.KindExperience:
		err = json.Unmarshal(msg, &v.Experience)
	case types.KindCertifications:
		err = json.Unmarshal(msg, &v.Certifications)
	default:
		err = errUnsupportedField
	}
	return v, err
}
