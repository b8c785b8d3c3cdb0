package enhancer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-builder/internal/types"
)

// MockLLMModel 返回预设内容的聊天模型
type MockLLMModel struct {
	mu           sync.Mutex
	mockResponse string
	Err          error
	Delay        time.Duration
	CallCount    int
	LastMessages []*schema.Message
}

func (m *MockLLMModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastMessages = messages
	m.mu.Unlock()
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
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

func sampleResume() types.Resume {
	return types.Resume{
		Name:    "Jane Smith",
		Title:   "Backend Engineer",
		Summary: "I build APIs.",
		Skills:  []string{"go"},
		Projects: []types.Project{
			{Name: "resume-builder", Description: "resume generator"},
		},
		Experience: []types.Experience{
			{Title: "Engineer", Company: "Acme", Duration: "2018-2023", Description: "payments"},
		},
	}
}

func TestEnhanceRewritesFreeText(t *testing.T) {
	mock := &MockLLMModel{mockResponse: "```json\n" + `{
		"summary": "Backend engineer who designs and ships reliable APIs.",
		"projects": [{"name": "renamed", "description": "Interview driven resume generator producing DOCX files."}],
		"experience": [{"company": "Other", "description": "Built and operated the payments platform."}]
	}` + "\n```"}
	in := sampleResume()

	out, err := New(mock).Enhance(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "Backend engineer who designs and ships reliable APIs.", out.Summary)
	assert.Equal(t, "resume-builder", out.Projects[0].Name, "项目名称保留原值")
	assert.Equal(t, "Interview driven resume generator producing DOCX files.", out.Projects[0].Description)
	assert.Equal(t, "Acme", out.Experience[0].Company, "公司保留原值")
	assert.Equal(t, "2018-2023", out.Experience[0].Duration)
	assert.Equal(t, "Built and operated the payments platform.", out.Experience[0].Description)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Skills, out.Skills)

	// 输入不被修改
	assert.Equal(t, sampleResume(), in)

	require.Len(t, mock.LastMessages, 2)
	assert.Equal(t, schema.System, mock.LastMessages[0].Role)
	assert.Contains(t, mock.LastMessages[1].Content, `"summary":"I build APIs."`)
}

func TestEnhanceMalformedReplyKeepsOriginal(t *testing.T) {
	mock := &MockLLMModel{mockResponse: "Sorry, I cannot help with that."}
	in := sampleResume()

	out, err := New(mock).Enhance(context.Background(), in)
	require.ErrorIs(t, err, ErrMalformedOutput)
	assert.Equal(t, in, out)

	mock.mockResponse = `{"summary": 42}`
	out, err = New(mock).Enhance(context.Background(), in)
	require.ErrorIs(t, err, ErrMalformedOutput)
	assert.Equal(t, in, out)
}

func TestEnhanceModelErrorKeepsOriginal(t *testing.T) {
	mock := &MockLLMModel{Err: errors.New("model unavailable")}
	in := sampleResume()

	out, err := New(mock).Enhance(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, in, out)
}

func TestEnhanceTimeout(t *testing.T) {
	mock := &MockLLMModel{Delay: time.Second, mockResponse: `{"summary": "late"}`}
	in := sampleResume()

	start := time.Now()
	out, err := New(mock, WithTimeout(20*time.Millisecond)).Enhance(context.Background(), in)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, in, out)
}

func TestEnhanceIgnoresMismatchedEntries(t *testing.T) {
	mock := &MockLLMModel{mockResponse: `{
		"summary": "",
		"projects": [{"description": "a"}, {"description": "b"}],
		"experience": []
	}`}
	in := sampleResume()

	out, err := New(mock).Enhance(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnhanceSkipsEmptyResume(t *testing.T) {
	mock := &MockLLMModel{mockResponse: `{"summary": "invented"}`}
	in := types.Resume{Name: "Jane Smith", Title: "Engineer"}

	out, err := New(mock).Enhance(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Zero(t, mock.CallCount)
}
