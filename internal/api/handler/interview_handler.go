package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"

	"resume-builder/internal/logger"
	"resume-builder/internal/metrics"
	"resume-builder/internal/service"
	"resume-builder/internal/session"
	"resume-builder/internal/tracing"
	"resume-builder/internal/types"
)

// InterviewService 处理器依赖的服务能力，由 service.ResumeService 实现
type InterviewService interface {
	CreateSession(ctx context.Context) (service.CreateResult, error)
	SubmitTurn(ctx context.Context, sessionID, text string) (session.TurnResult, error)
	Preview(ctx context.Context, sessionID string) (service.Preview, error)
	PreviewMarkdown(ctx context.Context, sessionID string) (string, error)
	Generate(ctx context.Context, sessionID string) (types.Artifact, error)
	Download(ctx context.Context, sessionID string) (types.Artifact, []byte, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Metrics() metrics.Snapshot
}

var _ InterviewService = (*service.ResumeService)(nil)

// InterviewHandler 访谈会话的 HTTP 处理器
type InterviewHandler struct {
	svc InterviewService
}

// NewInterviewHandler 创建访谈处理器
func NewInterviewHandler(svc InterviewService) *InterviewHandler {
	return &InterviewHandler{svc: svc}
}

// TurnRequest 提交回答的请求体
type TurnRequest struct {
	Text string `json:"text"`
}

// CreateSession POST /sessions
func (h *InterviewHandler) CreateSession(c context.Context, ctx *app.RequestContext) {
	res, err := h.svc.CreateSession(c)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusCreated, res)
}

// SubmitTurn POST /sessions/:id/turns
func (h *InterviewHandler) SubmitTurn(c context.Context, ctx *app.RequestContext) {
	var req TurnRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}

	res, err := h.svc.SubmitTurn(c, ctx.Param("id"), req.Text)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, res)
}

// Preview GET /sessions/:id/preview[?format=markdown]
func (h *InterviewHandler) Preview(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if strings.EqualFold(ctx.Query("format"), "markdown") {
		md, err := h.svc.PreviewMarkdown(c, id)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.Data(consts.StatusOK, "text/markdown; charset=utf-8", []byte(md))
		return
	}

	p, err := h.svc.Preview(c, id)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, p)
}

// Generate POST /sessions/:id/generate
func (h *InterviewHandler) Generate(c context.Context, ctx *app.RequestContext) {
	a, err := h.svc.Generate(c, ctx.Param("id"))
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, a)
}

// Download GET /sessions/:id/download
func (h *InterviewHandler) Download(c context.Context, ctx *app.RequestContext) {
	a, data, err := h.svc.Download(c, ctx.Param("id"))
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.Header("Content-Disposition", "attachment; filename="+a.FileName)
	ctx.Header("X-Content-SHA256", a.SHA256)
	ctx.Data(consts.StatusOK, a.ContentType, data)
}

// DeleteSession DELETE /sessions/:id
func (h *InterviewHandler) DeleteSession(c context.Context, ctx *app.RequestContext) {
	if err := h.svc.DeleteSession(c, ctx.Param("id")); err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.Status(consts.StatusNoContent)
}

// Health GET /health
func (h *InterviewHandler) Health(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

// Metrics GET /metrics
func (h *InterviewHandler) Metrics(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, h.svc.Metrics())
}

// statusFor 将业务错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return consts.StatusNotFound
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrNotReady):
		return consts.StatusConflict
	case errors.Is(err, session.ErrGenerationFailed):
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}

func writeError(c context.Context, ctx *app.RequestContext, err error) {
	status := statusFor(err)
	tracing.RecordHTTPError(trace.SpanFromContext(c), err, status)

	ev := logger.Ctx(c).Warn()
	if status >= consts.StatusInternalServerError {
		ev = logger.Ctx(c).Error()
	}
	ev.Err(err).
		Str("path", string(ctx.Path())).
		Int("status", status).
		Msg("请求处理失败")

	ctx.JSON(status, utils.H{"error": err.Error()})
}
