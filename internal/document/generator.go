// Package document 负责简历文档的渲染、存储与读取
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-builder/internal/logger"
	"resume-builder/internal/tracing"
	"resume-builder/internal/types"
)

// ErrBlobNotFound 对象不存在
var ErrBlobNotFound = errors.New("document: blob not found")

var documentTracer = otel.Tracer("resume-builder/document")

// Renderer 将简历编码为某种文档格式
type Renderer interface {
	Render(r types.Resume) ([]byte, error)
	ContentType() string
	Extension() string
}

// BlobStore 文档字节的存储
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Generator 渲染简历并写入 BlobStore，返回可供下载的文档句柄
type Generator struct {
	renderer Renderer
	blobs    BlobStore
	prefix   string
	now      func() time.Time
}

// GeneratorOption Generator 的可选配置
type GeneratorOption func(*Generator)

// WithKeyPrefix 设置对象键前缀，默认 "resumes"
func WithKeyPrefix(prefix string) GeneratorOption {
	return func(g *Generator) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

// WithClock 替换时间函数，测试使用
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator 创建文档生成器
func NewGenerator(renderer Renderer, blobs BlobStore, opts ...GeneratorOption) *Generator {
	g := &Generator{
		renderer: renderer,
		blobs:    blobs,
		prefix:   "resumes",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FileName 下载时使用的文件名
func (g *Generator) FileName(sessionID string) string {
	return "resume_" + sessionID + g.renderer.Extension()
}

// Generate 渲染并保存文档
func (g *Generator) Generate(ctx context.Context, sessionID string, r types.Resume) (types.Artifact, error) {
	ctx, span := documentTracer.Start(ctx, "Document.Generate",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("document.content_type", g.renderer.ContentType()),
		))
	defer span.End()

	data, err := g.renderer.Render(r)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return types.Artifact{}, fmt.Errorf("渲染简历文档失败: %w", err)
	}

	fileName := g.FileName(sessionID)
	key := g.prefix + "/" + sessionID + "/" + fileName
	if err := g.blobs.PutObject(ctx, key, data, g.renderer.ContentType()); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore, attribute.String("object.key", key))
		return types.Artifact{}, fmt.Errorf("保存简历文档失败: %w", err)
	}

	sum := sha256.Sum256(data)
	artifact := types.Artifact{
		Key:         key,
		FileName:    fileName,
		ContentType: g.renderer.ContentType(),
		Size:        int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		CreatedAt:   g.now(),
	}
	span.SetAttributes(attribute.Int64("document.size", artifact.Size))

	logger.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Str("key", key).
		Int64("size", artifact.Size).
		Msg("简历文档已生成")
	return artifact, nil
}

// Open 读取已生成的文档，并校验摘要
func (g *Generator) Open(ctx context.Context, a types.Artifact) ([]byte, error) {
	ctx, span := documentTracer.Start(ctx, "Document.Open", trace.WithAttributes(attribute.String("object.key", a.Key)))
	defer span.End()

	data, err := g.blobs.GetObject(ctx, a.Key)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return nil, fmt.Errorf("读取简历文档失败: %w", err)
	}
	if a.SHA256 != "" {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != a.SHA256 {
			err := fmt.Errorf("简历文档 %s 摘要不匹配", a.Key)
			tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
			return nil, err
		}
	}
	return data, nil
}

// MemoryBlobStore 进程内的 BlobStore，未配置对象存储时使用
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ BlobStore = (*MemoryBlobStore)(nil)

// NewMemoryBlobStore 创建内存存储
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string][]byte)}
}

// PutObject 实现 BlobStore
func (m *MemoryBlobStore) PutObject(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// GetObject 实现 BlobStore
func (m *MemoryBlobStore) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Len 已保存的对象数
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
