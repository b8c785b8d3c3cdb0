package interview

import (
	"errors"
	"fmt"
	"strings"

	"resume-builder/internal/types"
)

var (
	// ErrEmptyScript 问卷中没有任何问题
	ErrEmptyScript = errors.New("问卷至少需要一个问题")
	// ErrInvalidQuestion 问题定义不合法
	ErrInvalidQuestion = errors.New("问题定义不合法")
)

// Question 问卷中的一个问题，绑定一个简历字段
type Question struct {
	ID       string        `yaml:"id" json:"id"`
	Prompt   string        `yaml:"prompt" json:"prompt"`
	Field    types.FieldID `yaml:"field" json:"field"`
	Optional bool          `yaml:"optional" json:"optional"`
}

// Script 有序问卷，进程启动时加载，之后只读
type Script struct {
	questions        []Question
	allowEarlyFinish bool
}

// ScriptOption Script 的可选配置
type ScriptOption func(*Script)

// WithEarlyFinish 允许在必填问题答完后通过触发短语提前结束
func WithEarlyFinish(allow bool) ScriptOption {
	return func(s *Script) {
		s.allowEarlyFinish = allow
	}
}

// NewScript 校验问题列表并构造问卷
func NewScript(questions []Question, opts ...ScriptOption) (*Script, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyScript
	}

	ids := make(map[string]struct{}, len(questions))
	fields := make(map[types.FieldID]string, len(questions))
	for i, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("%w: 第%d个问题缺少id", ErrInvalidQuestion, i+1)
		}
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("%w: 问题 %s 缺少提示语", ErrInvalidQuestion, q.ID)
		}
		if !q.Field.Valid() {
			return nil, fmt.Errorf("%w: 问题 %s 绑定了未知字段 %q", ErrInvalidQuestion, q.ID, q.Field)
		}
		if _, dup := ids[q.ID]; dup {
			return nil, fmt.Errorf("%w: 问题id %s 重复", ErrInvalidQuestion, q.ID)
		}
		if other, dup := fields[q.Field]; dup {
			return nil, fmt.Errorf("%w: 字段 %s 同时绑定在问题 %s 和 %s 上", ErrInvalidQuestion, q.Field, other, q.ID)
		}
		ids[q.ID] = struct{}{}
		fields[q.Field] = q.ID
	}

	for _, f := range types.RequiredFields {
		id, ok := fields[f]
		if !ok {
			return nil, fmt.Errorf("%w: 必填字段 %s 没有对应的问题", ErrInvalidQuestion, f)
		}
		for _, q := range questions {
			if q.ID == id && q.Optional {
				return nil, fmt.Errorf("%w: 必填字段 %s 的问题 %s 不能是可选的", ErrInvalidQuestion, f, id)
			}
		}
	}

	s := &Script{questions: append([]Question(nil), questions...)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Len 问题数量
func (s *Script) Len() int { return len(s.questions) }

// Question 返回第 i 个问题
func (s *Script) Question(i int) Question { return s.questions[i] }

// Questions 返回问题列表的副本
func (s *Script) Questions() []Question {
	return append([]Question(nil), s.questions...)
}

// AllowEarlyFinish 是否允许提前结束
func (s *Script) AllowEarlyFinish() bool { return s.allowEarlyFinish }

// Next 按问卷顺序返回第一个未完成问题的下标。
// done 判断某个问题是否已满足；全部满足时 ok 为 false。
func (s *Script) Next(done func(Question) bool) (idx int, ok bool) {
	for i, q := range s.questions {
		if !done(q) {
			return i, true
		}
	}
	return -1, false
}

// RequiredSatisfied 判断所有必填问题是否已满足
func (s *Script) RequiredSatisfied(done func(Question) bool) bool {
	for _, q := range s.questions {
		if !q.Optional && !done(q) {
			return false
		}
	}
	return true
}

// RequiredCount 必填问题数量
func (s *Script) RequiredCount() int {
	n := 0
	for _, q := range s.questions {
		if !q.Optional {
			n++
		}
	}
	return n
}

// DefaultQuestions 默认的简历访谈问题
func DefaultQuestions() []Question {
	return []Question{
		{ID: "name", Prompt: "What is your full name?", Field: types.FieldName},
		{ID: "title", Prompt: "What is your title/domain (e.g., Software Engineer)?", Field: types.FieldTitle},
		{ID: "phone", Prompt: "What is your phone number?", Field: types.FieldPhone, Optional: true},
		{ID: "email", Prompt: "What is your email address?", Field: types.FieldEmail, Optional: true},
		{ID: "location", Prompt: "What is your current location?", Field: types.FieldLocation, Optional: true},
		{ID: "summary", Prompt: "Give a brief personal description.", Field: types.FieldSummary, Optional: true},
		{ID: "education", Prompt: "Which college/university did you attend?", Field: types.FieldEducation, Optional: true},
		{ID: "education_degree", Prompt: "What is your degree and major?", Field: types.FieldEducationDegree, Optional: true},
		{ID: "education_years", Prompt: "What is your current year of study or passing year?", Field: types.FieldEducationYears, Optional: true},
		{ID: "education_grade", Prompt: "What is your CGPA or percentage?", Field: types.FieldEducationGrade, Optional: true},
		{ID: "skills", Prompt: "What are your skills (comma-separated)?", Field: types.FieldSkills, Optional: true},
		{ID: "projects", Prompt: "Provide your projects (name: description, separate multiple projects with ';').", Field: types.FieldProjects, Optional: true},
		{ID: "experience", Prompt: "Describe your work experience (job title, company, duration, and description).", Field: types.FieldExperience, Optional: true},
		{ID: "certifications", Prompt: "List any certifications (name, issuer, and date).", Field: types.FieldCertifications, Optional: true},
		{ID: "languages", Prompt: "Which languages do you speak (comma-separated)?", Field: types.FieldLanguages, Optional: true},
	}
}
