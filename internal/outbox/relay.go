// Package outbox 实现发件箱模式：生成记录与事件在同一事务写入，再由中继异步投递到消息队列
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resume-builder/internal/constants"
	"resume-builder/internal/storage"
	"resume-builder/internal/storage/models"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxAttempts            = 5 // 超过后标记为 FAILED，不再投递
)

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       storage.EventPublisher
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	now             func() time.Time
	tracer          trace.Tracer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option 配置 MessageRelay
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每批处理的消息数
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewMessageRelay 创建一个新的 MessageRelay 实例
func NewMessageRelay(db *gorm.DB, publisher storage.EventPublisher, logger zerolog.Logger, opts ...Option) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.With().Str("component", "outbox-relay").Logger(),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		now:             time.Now,
		tracer:          otel.Tracer("resume-builder/outbox"),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 在后台开始轮询
func (r *MessageRelay) Start() {
	r.logger.Info().Dur("interval", r.pollingInterval).Int("batch_size", r.batchSize).Msg("MessageRelay starting")
	ticker := time.NewTicker(r.pollingInterval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				r.logger.Info().Msg("MessageRelay stopped")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("处理outbox消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束，可重复调用
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

// processPendingMessages 获取并处理一批待发布的消息
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	// 空轮询不创建 span
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED 让多个实例并行轮询时互不重复处理
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", constants.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	r.logger.Debug().Int("count", len(messages)).Msg("获取到待发布消息")

	for i := range messages {
		msg := &messages[i]
		pubErr := r.publisher.PublishEvent(ctx, eventFromOutbox(msg))
		if pubErr != nil {
			r.logger.Warn().Err(pubErr).
				Str("message_id", msg.MessageID).
				Str("session_id", msg.SessionID).
				Int("attempts", msg.Attempts+1).
				Msg("发布outbox消息失败")
			span.RecordError(pubErr)
		}
		applyPublishResult(msg, pubErr, r.now())

		if err := tx.Save(msg).Error; err != nil {
			// 整批回滚，下次轮询重新拾取
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	return tx.Commit().Error
}

func eventFromOutbox(msg *models.OutboxMessage) storage.ResumeEvent {
	return storage.ResumeEvent{
		MessageID:  msg.MessageID,
		SessionID:  msg.SessionID,
		EventType:  msg.EventType,
		Exchange:   msg.TargetExchange,
		RoutingKey: msg.TargetRoutingKey,
		Payload:    []byte(msg.Payload),
	}
}

// applyPublishResult 根据发布结果更新消息状态
func applyPublishResult(msg *models.OutboxMessage, pubErr error, now time.Time) {
	if pubErr != nil {
		msg.Attempts++
		msg.LastError = pubErr.Error()
		if msg.Attempts >= maxAttempts {
			msg.Status = constants.OutboxStatusFailed
		}
		return
	}
	msg.Status = constants.OutboxStatusSent
	msg.PublishedAt = &now
	msg.LastError = ""
}
