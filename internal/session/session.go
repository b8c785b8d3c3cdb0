// Package session 实现简历访谈的会话状态机和会话存储
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"resume-builder/internal/assembler"
	"resume-builder/internal/extractor"
	"resume-builder/internal/interview"
	"resume-builder/internal/logger"
	"resume-builder/internal/types"
)

const (
	DefaultTriggerPhrase  = "generate my resume"
	DefaultExtractTimeout = 10 * time.Second

	ackAccepted       = "Got it!"
	ackSkipped        = "No problem, skipping that one."
	ackClarify        = "Sorry, I couldn't understand that. Could you rephrase your answer?"
	ackRequiredFirst  = "Please complete all the questions first before generating your resume."
	ackCompleted      = "Thank you! Your resume is ready. You can preview it or download it now."
	ackCanFinishEarly = "Got it! You can keep answering, or type '%s' to finish now."
)

// DefaultSkipPhrases 跳过可选问题的默认短语
var DefaultSkipPhrases = []string{"skip", "none", "n/a"}

// Options 会话行为配置，进程启动时确定
type Options struct {
	TriggerPhrase  string
	SkipPhrases    []string
	ExtractTimeout time.Duration
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.TriggerPhrase) == "" {
		o.TriggerPhrase = DefaultTriggerPhrase
	}
	if o.SkipPhrases == nil {
		o.SkipPhrases = DefaultSkipPhrases
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = DefaultExtractTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// TurnResult 一轮回答的结果
type TurnResult struct {
	Acknowledgement string `json:"acknowledgement"`
	NextPrompt      string `json:"next_prompt,omitempty"`
	// Completed 仅在进入已完成状态的那一轮为 true
	Completed bool  `json:"completed"`
	State     State `json:"state"`
	// Recognized 为 false 表示回答未被识别，问题保持不变
	Recognized bool `json:"recognized"`
}

// Session 一次简历访谈。本身不是并发安全的，由 Store 保证同一会话的操作串行执行
type Session struct {
	id      string
	script  *interview.Script
	opts    Options
	state   State
	started bool
	cursor  int
	answers types.Answers
	skipped map[string]bool
	draft   types.Resume

	createdAt   time.Time
	updatedAt   time.Time
	completedAt time.Time
	artifact    *types.Artifact
}

// New 创建处于 Active 状态的会话，需调用 Start 获取第一个问题
func New(id string, script *interview.Script, opts Options) *Session {
	opts = opts.withDefaults()
	now := opts.Now()
	s := &Session{
		id:        id,
		script:    script,
		opts:      opts,
		state:     StateActive,
		answers:   types.Answers{},
		skipped:   map[string]bool{},
		createdAt: now,
		updatedAt: now,
	}
	s.draft = assembler.Project(s.answers)
	return s
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// State 当前状态
func (s *Session) State() State { return s.state }

// Cursor 当前问题下标，访谈结束后为 -1
func (s *Session) Cursor() int { return s.cursor }

// CreatedAt 创建时间
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// CompletedAt 完成时间，未完成时为零值
func (s *Session) CompletedAt() time.Time { return s.completedAt }

// Answers 返回答案副本
func (s *Session) Answers() types.Answers { return s.answers.Clone() }

// Draft 返回当前草稿的副本
func (s *Session) Draft() types.Resume { return cloneResume(s.draft) }

// Artifact 已生成的文档句柄
func (s *Session) Artifact() (types.Artifact, bool) {
	if s.artifact == nil {
		return types.Artifact{}, false
	}
	return *s.artifact, true
}

// CurrentPrompt 当前问题的提示语，访谈结束后返回空
func (s *Session) CurrentPrompt() string {
	if !s.started || s.cursor < 0 {
		return ""
	}
	return s.script.Question(s.cursor).Prompt
}

// Start 定位到第一个问题并返回提示语，每个会话只能调用一次
func (s *Session) Start() (string, error) {
	if s.started {
		return "", NewStateError(s.id, "start", s.state)
	}
	s.started = true
	s.advance()
	return s.CurrentPrompt(), nil
}

// SubmitAnswer 处理一轮回答。
// 空文本仅重复当前问题；提取失败或超时时保持当前问题并请求澄清，不返回错误。
func (s *Session) SubmitAnswer(ctx context.Context, ext extractor.Extractor, text string) (TurnResult, error) {
	if !s.started || s.state.Finished() {
		return TurnResult{}, NewStateError(s.id, "submit_answer", s.state)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return s.result("", false, true), nil
	}

	if s.isTrigger(trimmed) {
		if s.state != StateAwaitingConfirmation {
			return s.result(ackRequiredFirst, false, true), nil
		}
		s.complete()
		return s.result(ackCompleted, true, true), nil
	}

	q := s.script.Question(s.cursor)
	if s.isSkip(trimmed) {
		if !q.Optional {
			return s.result(ackClarify, false, false), nil
		}
		s.skipped[q.ID] = true
		return s.afterUpdate(ackSkipped), nil
	}

	extracted, err := extractWithTimeout(ctx, ext, trimmed, q.Field, s.opts.ExtractTimeout)
	if err != nil {
		ev := logger.Ctx(ctx).Info()
		if !errors.Is(err, extractor.ErrUnrecognized) {
			ev = logger.Ctx(ctx).Warn()
		}
		ev.Err(err).Str("session_id", s.id).Str("field", string(q.Field)).Msg("回答未被识别，请求澄清")
		return s.result(ackClarify, false, false), nil
	}

	for f, v := range extracted {
		if f.Valid() && !v.IsZero() {
			s.answers[f] = v.Clone()
		}
	}
	s.draft = assembler.Project(s.answers)
	return s.afterUpdate(ackAccepted), nil
}

type extractResult struct {
	answers types.Answers
	err     error
}

// extractWithTimeout 到达超时后立即返回，不依赖提取器自身响应 ctx 取消。
// 超时后提取器的结果被丢弃
func extractWithTimeout(ctx context.Context, ext extractor.Extractor, text string, field types.FieldID, timeout time.Duration) (types.Answers, error) {
	ectx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan extractResult, 1)
	go func() {
		answers, err := ext.Extract(ectx, text, field)
		done <- extractResult{answers: answers, err: err}
	}()

	select {
	case r := <-done:
		return r.answers, r.err
	case <-ectx.Done():
		return nil, fmt.Errorf("%w: %v", extractor.ErrUnrecognized, ectx.Err())
	}
}

// afterUpdate 重新定位问题并计算状态
func (s *Session) afterUpdate(ack string) TurnResult {
	s.updatedAt = s.opts.Now()
	s.advance()
	if s.state == StateCompleted {
		return s.result(ackCompleted, true, true)
	}
	if s.state == StateAwaitingConfirmation && ack == ackAccepted {
		ack = fmt.Sprintf(ackCanFinishEarly, s.opts.TriggerPhrase)
	}
	return s.result(ack, false, true)
}

// advance 按问卷顺序定位第一个未满足的问题，并由谓词推导状态
func (s *Session) advance() {
	idx, ok := s.script.Next(s.questionDone)
	if !ok {
		s.complete()
		return
	}
	s.cursor = idx
	if s.script.AllowEarlyFinish() && s.script.RequiredSatisfied(s.questionDone) {
		s.state = StateAwaitingConfirmation
	} else {
		s.state = StateActive
	}
}

func (s *Session) questionDone(q interview.Question) bool {
	return s.answers.Has(q.Field) || s.skipped[q.ID]
}

func (s *Session) complete() {
	now := s.opts.Now()
	s.state = StateCompleted
	s.cursor = -1
	s.updatedAt = now
	if s.completedAt.IsZero() {
		s.completedAt = now
	}
	s.draft = assembler.Project(s.answers)
}

func (s *Session) result(ack string, completed, recognized bool) TurnResult {
	return TurnResult{
		Acknowledgement: ack,
		NextPrompt:      s.CurrentPrompt(),
		Completed:       completed,
		State:           s.state,
		Recognized:      recognized,
	}
}

// Resume 返回用于生成文档的完整简历，只能在访谈结束后调用
func (s *Session) Resume() (types.Resume, error) {
	if !s.state.Finished() {
		return types.Resume{}, NewNotReadyError(s.id, "resume", s.state)
	}
	return assembler.Assemble(s.answers)
}

// AttachArtifact 记录生成结果并进入 Generated 状态
func (s *Session) AttachArtifact(a types.Artifact) error {
	if s.state != StateCompleted {
		return NewStateError(s.id, "attach_artifact", s.state)
	}
	if missing := s.draft.MissingRequired(); len(missing) > 0 {
		return &Error{SessionID: s.id, Op: "attach_artifact", BaseErr: assembler.ErrIncompleteRequiredFields}
	}
	s.artifact = &a
	s.state = StateGenerated
	s.updatedAt = s.opts.Now()
	return nil
}

func (s *Session) isTrigger(text string) bool {
	return normalizePhrase(text) == normalizePhrase(s.opts.TriggerPhrase)
}

func (s *Session) isSkip(text string) bool {
	n := normalizePhrase(text)
	for _, p := range s.opts.SkipPhrases {
		if n == normalizePhrase(p) {
			return true
		}
	}
	return false
}

// normalizePhrase 小写、合并空白并去掉结尾标点
func normalizePhrase(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRightFunc(s, unicode.IsPunct)
}

func cloneResume(r types.Resume) types.Resume {
	out := r
	out.Education = append([]types.Education{}, r.Education...)
	out.Skills = append([]string{}, r.Skills...)
	out.Projects = append([]types.Project{}, r.Projects...)
	out.Experience = append([]types.Experience{}, r.Experience...)
	out.Certifications = append([]types.Certification{}, r.Certifications...)
	out.Languages = append([]string{}, r.Languages...)
	return out
}
