// Package llm 提供阿里云通义千问（OpenAI 兼容接口）的 eino 聊天模型实现
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-builder/internal/logger"
	"resume-builder/internal/tracing"
)

const (
	// DefaultAPIURL DashScope 的 OpenAI 兼容地址
	DefaultAPIURL    = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	DefaultModelName = "qwen-plus"

	defaultHTTPTimeout = 60 * time.Second
)

// ErrMissingAPIKey 未配置 API 密钥
var ErrMissingAPIKey = errors.New("API 密钥不能为空")

// Config 模型配置
type Config struct {
	APIKey      string
	APIURL      string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// QwenChatModel 通过 OpenAI 兼容接口调用通义千问，实现 model.ToolCallingChatModel
type QwenChatModel struct {
	cfg   Config
	tools []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*QwenChatModel)(nil)

// NewQwenChatModel 创建模型客户端
func NewQwenChatModel(cfg Config) (*QwenChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModelName
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	logger.Info().Str("api_url", cfg.APIURL).Str("model", cfg.Model).Msg("通义千问客户端初始化")
	return &QwenChatModel{cfg: cfg}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    *float32          `json:"temperature,omitempty"`
	MaxTokens      *int              `json:"max_tokens,omitempty"`
	Tools          []chatTool        `json:"tools,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role      string  `json:"role"`
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate 实现 model.BaseChatModel
func (q *QwenChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	temperature := q.cfg.Temperature
	maxTokens := q.cfg.MaxTokens
	modelName := q.cfg.Model
	options := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}, opts...)

	req := chatRequest{
		Model:          *options.Model,
		Messages:       make([]chatMessage, 0, len(messages)),
		Temperature:    options.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		req.MaxTokens = options.MaxTokens
	}
	for _, m := range messages {
		if m == nil {
			continue
		}
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	for _, t := range q.tools {
		req.Tools = append(req.Tools, chatTool{
			Type:     "function",
			Function: toolFunction{Name: t.Name, Description: t.Desc, Parameters: map[string]any{"type": "object"}},
		})
	}
	if len(req.Tools) > 0 {
		req.ResponseFormat = nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+q.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := q.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	logger.Debug().
		Str("model", req.Model).
		Int("status", httpResp.StatusCode).
		Dur("latency", time.Since(start)).
		Str("body", tracing.TruncateString(string(respBody), 200)).
		Msg("通义千问响应")

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %d: %s", httpResp.StatusCode, tracing.TruncateString(string(respBody), 500))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("API 返回了空的 choices")
	}

	choice := parsed.Choices[0].Message
	out := &schema.Message{Role: schema.Assistant}
	if choice.Role != "" {
		out.Role = schema.RoleType(choice.Role)
	}
	if choice.Content != nil {
		out.Content = *choice.Content
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			ID:       tc.ID,
			Function: schema.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	out.ResponseMeta = &schema.ResponseMeta{
		Usage: &schema.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.PromptTokens + parsed.Usage.CompletionTokens,
		},
	}
	return out, nil
}

// Stream 未实现，提取场景只需要一次性结果
func (q *QwenChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("QwenChatModel 不支持流式输出")
}

// WithTools 返回绑定了工具的新实例，原实例不受影响
func (q *QwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *q
	clone.tools = append([]*schema.ToolInfo(nil), tools...)
	return &clone, nil
}
