package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"resume-builder/internal/config"
	"resume-builder/internal/constants"
)

// ErrEventNacked 代理拒绝了事件
var ErrEventNacked = errors.New("RabbitMQ拒绝了简历事件")

// ResumeEvent 一条待投递的简历事件。Exchange 与 RoutingKey 为空时使用发布器的默认值
type ResumeEvent struct {
	MessageID  string
	SessionID  string
	EventType  string
	Exchange   string
	RoutingKey string
	Payload    []byte
}

// EventPublisher 简历事件发布接口，outbox 中继依赖它投递事件
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev ResumeEvent) error
}

var _ EventPublisher = (*RabbitMQ)(nil)

// RabbitMQ 以 publisher confirm 模式发布简历事件。
// 只持有一个通道，发布与等待确认都在锁内完成
type RabbitMQ struct {
	conn *amqp.Connection

	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool

	exchange   string
	routingKey string
	logger     zerolog.Logger
}

// NewRabbitMQ 连接 RabbitMQ，打开确认通道并声明默认的简历事件 exchange
func NewRabbitMQ(cfg *config.RabbitMQConfig, logger zerolog.Logger) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	exchange, routingKey := eventDefaults(cfg)
	mq := &RabbitMQ{
		conn:       conn,
		declared:   make(map[string]bool),
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger.With().Str("component", "rabbitmq").Str("exchange", exchange).Logger(),
	}

	mq.mu.Lock()
	_, err = mq.channelLocked()
	mq.mu.Unlock()
	if err != nil {
		conn.Close()
		return nil, err
	}

	mq.logger.Info().Str("routing_key", routingKey).Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

func eventDefaults(cfg *config.RabbitMQConfig) (exchange, routingKey string) {
	exchange, routingKey = cfg.ResumeEventsExchange, cfg.GeneratedRoutingKey
	if exchange == "" {
		exchange = constants.ResumeEventsExchange
	}
	if routingKey == "" {
		routingKey = constants.EventResumeGenerated
	}
	return exchange, routingKey
}

// route 补全事件的 exchange、路由键和事件类型
func (r *RabbitMQ) route(ev ResumeEvent) ResumeEvent {
	if ev.Exchange == "" {
		ev.Exchange = r.exchange
	}
	if ev.RoutingKey == "" {
		ev.RoutingKey = r.routingKey
	}
	if ev.EventType == "" {
		ev.EventType = constants.EventResumeGenerated
	}
	return ev
}

func newPublishing(ev ResumeEvent, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		MessageId:    ev.MessageID,
		Type:         ev.EventType,
		AppId:        constants.ServiceName,
		Headers:      amqp.Table{"session_id": ev.SessionID},
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         ev.Payload,
	}
}

// channelLocked 返回可用的确认通道，通道关闭后重新打开。调用方持有 r.mu
func (r *RabbitMQ) channelLocked() (*amqp.Channel, error) {
	if r.ch != nil && !r.ch.IsClosed() {
		return r.ch, nil
	}
	if r.conn.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ连接已关闭")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("无法创建RabbitMQ通道: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("开启发布确认失败: %w", err)
	}
	if err := r.declareLocked(ch, r.exchange); err != nil {
		ch.Close()
		return nil, err
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			r.logger.Warn().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("RabbitMQ通道已关闭")
		}
	}()

	r.ch = ch
	return ch, nil
}

// declareLocked 声明持久化 topic exchange，每个名称只声明一次
func (r *RabbitMQ) declareLocked(ch *amqp.Channel, exchange string) error {
	if r.declared[exchange] {
		return nil
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("声明exchange %s 失败: %w", exchange, err)
	}
	r.declared[exchange] = true
	r.logger.Debug().Str("declared", exchange).Msg("已声明简历事件exchange")
	return nil
}

// PublishEvent 持久化发布事件并等待代理确认。代理 nack 时返回 ErrEventNacked
func (r *RabbitMQ) PublishEvent(ctx context.Context, ev ResumeEvent) error {
	ev = r.route(ev)
	if ev.MessageID == "" {
		return fmt.Errorf("简历事件缺少message_id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, err := r.channelLocked()
	if err != nil {
		return err
	}
	if err := r.declareLocked(ch, ev.Exchange); err != nil {
		return err
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, ev.Exchange, ev.RoutingKey, false, false, newPublishing(ev, time.Now()))
	if err != nil {
		return fmt.Errorf("发布简历事件失败: %w", err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("等待发布确认失败: %w", err)
	}
	if !acked {
		return fmt.Errorf("%w: message_id=%s", ErrEventNacked, ev.MessageID)
	}

	r.logger.Debug().
		Str("message_id", ev.MessageID).
		Str("session_id", ev.SessionID).
		Str("routing_key", ev.RoutingKey).
		Msg("简历事件已确认")
	return nil
}

// Close 关闭通道和连接
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		r.ch.Close()
		r.ch = nil
	}
	r.mu.Unlock()
	return r.conn.Close()
}
