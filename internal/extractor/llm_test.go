package extractor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-builder/internal/ratelimit"
	"resume-builder/internal/types"
)

// MockLLMModel 返回预设内容的聊天模型
type MockLLMModel struct {
	mu           sync.Mutex
	mockResponse string
	Err          error
	CallCount    int
	LastMessages []*schema.Message
}

func (m *MockLLMModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	m.LastMessages = messages
	if m.Err != nil {
		return nil, m.Err
	}
	return &schema.Message{Role: schema.Assistant, Content: m.mockResponse}, nil
}

func (m *MockLLMModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *MockLLMModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestLLMExtractMultipleFields(t *testing.T) {
	mock := &MockLLMModel{mockResponse: "Sure! ```json\n{\"name\": \"Jane Smith\", \"title\": \"Backend Engineer\", \"hobby\": \"chess\"}\n```"}
	e := NewLLM(mock)

	answers, err := e.Extract(context.Background(), "I'm Jane Smith and I work as a backend engineer", types.FieldName)
	require.NoError(t, err)
	assert.Equal(t, types.Answers{
		types.FieldName:  types.TextValue("Jane Smith"),
		types.FieldTitle: types.TextValue("Backend Engineer"),
	}, answers)

	require.Len(t, mock.LastMessages, 2)
	assert.Equal(t, schema.System, mock.LastMessages[0].Role)
	assert.True(t, strings.Contains(mock.LastMessages[1].Content, "Expected field: name"))
}

func TestLLMExtractStructured(t *testing.T) {
	mock := &MockLLMModel{mockResponse: `{"experience": [{"title": "Engineer", "company": "Acme", "duration": "3 years", "description": "APIs"}]}`}

	answers, err := NewLLM(mock).Extract(context.Background(), "three years building APIs at Acme", types.FieldExperience)
	require.NoError(t, err)
	assert.Equal(t, []types.Experience{{Title: "Engineer", Company: "Acme", Duration: "3 years", Description: "APIs"}},
		answers[types.FieldExperience].Experience)
}

func TestLLMExtractUnrecognized(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "显式未识别", response: `{"unrecognized": true}`},
		{name: "缺少期望字段", response: `{"title": "Engineer"}`},
		{name: "非JSON", response: "I could not find a name"},
		{name: "类型不匹配", response: `{"name": ["Jane"]}`},
		{name: "模型错误", err: errors.New("API 请求失败，状态 401")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockLLMModel{mockResponse: tt.response, Err: tt.err}
			_, err := NewLLM(mock).Extract(context.Background(), "hello there", types.FieldName)
			require.ErrorIs(t, err, ErrUnrecognized)
		})
	}
}

func TestLLMExtractUsesRateLimiter(t *testing.T) {
	mock := &MockLLMModel{Err: errors.New("read: connection reset by peer")}
	limiter := ratelimit.NewTokenBucket(6000, 10).WithRetryPolicy(time.Millisecond, 2)

	_, err := NewLLM(mock, WithRateLimiter(limiter)).Extract(context.Background(), "Jane", types.FieldName)
	require.ErrorIs(t, err, ErrUnrecognized)
	assert.Equal(t, 3, mock.CallCount)
}

func TestHybridFallsBackOnlyWhenUnrecognized(t *testing.T) {
	mock := &MockLLMModel{mockResponse: `{"phone": "555 0100 200"}`}
	h := NewHybrid(NewRules(), NewLLM(mock))

	answers, err := h.Extract(context.Background(), "+1 555 123 4567", types.FieldPhone)
	require.NoError(t, err)
	assert.Equal(t, "+1 555 123 4567", answers.Text(types.FieldPhone))
	assert.Equal(t, 0, mock.CallCount)

	answers, err = h.Extract(context.Background(), "five five five, oh one hundred", types.FieldPhone)
	require.NoError(t, err)
	assert.Equal(t, "555 0100 200", answers.Text(types.FieldPhone))
	assert.Equal(t, 1, mock.CallCount)
}

func TestHybridWithoutFallback(t *testing.T) {
	h := NewHybrid(NewRules(), nil)
	_, err := h.Extract(context.Background(), "nope", types.FieldEmail)
	require.ErrorIs(t, err, ErrUnrecognized)
}
