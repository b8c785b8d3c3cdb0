// Package service 组织简历访谈的完整流程：会话、逐轮回答、预览、生成与下载
package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"resume-builder/internal/document"
	"resume-builder/internal/extractor"
	"resume-builder/internal/logger"
	"resume-builder/internal/metrics"
	"resume-builder/internal/session"
	"resume-builder/internal/tracing"
	"resume-builder/internal/types"
)

var tracer = otel.Tracer("resume-builder/service")

// DefaultGenerationTimeout 单次文档生成的默认超时
const DefaultGenerationTimeout = 30 * time.Second

// ArtifactGenerator 渲染并存储简历文档，Open 读取已存储的文档
type ArtifactGenerator interface {
	Generate(ctx context.Context, sessionID string, r types.Resume) (types.Artifact, error)
	Open(ctx context.Context, a types.Artifact) ([]byte, error)
}

// ResumeEnhancer 在生成前润色简历，返回副本
type ResumeEnhancer interface {
	Enhance(ctx context.Context, r types.Resume) (types.Resume, error)
}

// ResultRecorder 记录生成结果，失败不影响生成本身
type ResultRecorder interface {
	RecordGenerated(ctx context.Context, sessionID string, r types.Resume, a types.Artifact, completedAt time.Time) error
}

// CreateResult 新建会话的结果
type CreateResult struct {
	SessionID string        `json:"session_id"`
	Prompt    string        `json:"prompt"`
	State     session.State `json:"state"`
}

// Preview 会话当前的简历草稿
type Preview struct {
	SessionID string        `json:"session_id"`
	State     session.State `json:"state"`
	Resume    types.Resume  `json:"resume"`
}

// ResumeService 简历访谈服务
type ResumeService struct {
	store      *session.Store
	extractor  extractor.Extractor
	generator  ArtifactGenerator
	enhancer   ResumeEnhancer
	recorder   ResultRecorder
	metrics    *metrics.Metrics
	genTimeout time.Duration

	group singleflight.Group
}

// Option 配置 ResumeService
type Option func(*ResumeService)

// WithRecorder 设置生成结果记录器
func WithRecorder(r ResultRecorder) Option {
	return func(s *ResumeService) {
		s.recorder = r
	}
}

// WithEnhancer 设置生成前的润色器，润色失败时使用原始内容
func WithEnhancer(e ResumeEnhancer) Option {
	return func(s *ResumeService) {
		s.enhancer = e
	}
}

// WithMetrics 设置业务计数器
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ResumeService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGenerationTimeout 设置文档生成超时
func WithGenerationTimeout(d time.Duration) Option {
	return func(s *ResumeService) {
		if d > 0 {
			s.genTimeout = d
		}
	}
}

// New 创建简历访谈服务
func New(store *session.Store, ext extractor.Extractor, gen ArtifactGenerator, opts ...Option) *ResumeService {
	s := &ResumeService{
		store:      store,
		extractor:  ext,
		generator:  gen,
		metrics:    metrics.NewMetrics(),
		genTimeout: DefaultGenerationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession 创建会话并返回第一个问题
func (s *ResumeService) CreateSession(ctx context.Context) (CreateResult, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.CreateSession")
	defer span.End()

	id, prompt, err := s.store.Create(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return CreateResult{}, err
	}
	span.SetAttributes(attribute.String("session.id", id))
	s.metrics.IncrementSessionsCreated()

	logger.Ctx(ctx).Info().Str("session_id", id).Msg("新建访谈会话")
	return CreateResult{SessionID: id, Prompt: prompt, State: session.StateActive}, nil
}

// SubmitTurn 提交一轮回答
func (s *ResumeService) SubmitTurn(ctx context.Context, sessionID, text string) (session.TurnResult, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.SubmitTurn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	var res session.TurnResult
	err := s.store.Do(ctx, sessionID, func(sess *session.Session) error {
		var err error
		res, err = sess.SubmitAnswer(ctx, s.extractor, text)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return session.TurnResult{}, err
	}

	if strings.TrimSpace(text) != "" {
		s.metrics.IncrementTurn(res.Recognized)
	}
	if res.Completed {
		s.metrics.IncrementSessionsCompleted()
		logger.Ctx(ctx).Info().Str("session_id", sessionID).Msg("访谈已完成")
	}
	span.SetAttributes(
		attribute.String("session.state", res.State.String()),
		attribute.Bool("turn.recognized", res.Recognized),
	)
	return res, nil
}

// Preview 返回当前草稿，任何状态都可预览
func (s *ResumeService) Preview(ctx context.Context, sessionID string) (Preview, error) {
	var p Preview
	err := s.store.View(ctx, sessionID, func(sess *session.Session) error {
		p = Preview{SessionID: sessionID, State: sess.State(), Resume: sess.Draft()}
		return nil
	})
	return p, err
}

// PreviewMarkdown 以 Markdown 形式返回当前草稿
func (s *ResumeService) PreviewMarkdown(ctx context.Context, sessionID string) (string, error) {
	p, err := s.Preview(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return document.Markdown(p.Resume), nil
}

// Generate 为已完成的会话生成文档。同一会话只生成一次，并发调用共享同一次生成结果
func (s *ResumeService) Generate(ctx context.Context, sessionID string) (types.Artifact, error) {
	ctx, span := tracer.Start(ctx, "ResumeService.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	v, err, shared := s.group.Do(sessionID, func() (interface{}, error) {
		return s.generate(context.WithoutCancel(ctx), sessionID)
	})
	span.SetAttributes(attribute.Bool("generation.shared", shared))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.Artifact{}, err
	}
	return v.(types.Artifact), nil
}

func (s *ResumeService) generate(ctx context.Context, sessionID string) (types.Artifact, error) {
	var (
		resume      types.Resume
		existing    types.Artifact
		generated   bool
		completedAt time.Time
	)
	err := s.store.View(ctx, sessionID, func(sess *session.Session) error {
		if a, ok := sess.Artifact(); ok {
			existing, generated = a, true
			return nil
		}
		if sess.State() != session.StateCompleted {
			return session.NewNotReadyError(sessionID, "generate", sess.State())
		}
		r, err := sess.Resume()
		if err != nil {
			return err
		}
		resume, completedAt = r, sess.CompletedAt()
		return nil
	})
	if err != nil {
		return types.Artifact{}, err
	}
	if generated {
		return existing, nil
	}

	// 润色、渲染与上传都在会话锁外进行，会话中的草稿保持不变
	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	if s.enhancer != nil {
		if enhanced, err := s.enhancer.Enhance(genCtx, resume); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("简历润色失败，使用原始内容")
		} else {
			resume = enhanced
		}
	}
	artifact, err := s.generator.Generate(genCtx, sessionID, resume)
	if err != nil {
		s.metrics.IncrementGeneration(false)
		logger.Ctx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("简历文档生成失败")
		return types.Artifact{}, session.NewGenerationError(sessionID, err)
	}

	var (
		committed types.Artifact
		attached  bool
	)
	err = s.store.Do(ctx, sessionID, func(sess *session.Session) error {
		if a, ok := sess.Artifact(); ok {
			committed = a
			return nil
		}
		if err := sess.AttachArtifact(artifact); err != nil {
			return err
		}
		committed, attached = artifact, true
		return nil
	})
	if err != nil {
		return types.Artifact{}, err
	}
	if !attached {
		return committed, nil
	}

	s.metrics.IncrementGeneration(true)
	logger.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Str("key", committed.Key).
		Int64("size", committed.Size).
		Msg("简历文档已生成")

	if s.recorder != nil {
		if err := s.recorder.RecordGenerated(genCtx, sessionID, resume, committed, completedAt); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("记录生成结果失败")
		}
	}
	return committed, nil
}

// Download 返回文档内容，已完成但尚未生成的会话会先触发生成
func (s *ResumeService) Download(ctx context.Context, sessionID string) (types.Artifact, []byte, error) {
	artifact, err := s.Generate(ctx, sessionID)
	if err != nil {
		return types.Artifact{}, nil, err
	}

	ctx, span := tracer.Start(ctx, "ResumeService.Download")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("artifact.key", artifact.Key))

	data, err := s.generator.Open(ctx, artifact)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return types.Artifact{}, nil, err
	}
	s.metrics.IncrementDownloads()
	return artifact, data, nil
}

// DeleteSession 删除会话
func (s *ResumeService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

// Metrics 返回业务计数快照
func (s *ResumeService) Metrics() metrics.Snapshot {
	return s.metrics.GetSnapshot(s.store.Len())
}
