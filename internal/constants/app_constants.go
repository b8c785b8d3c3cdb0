package constants

const (
	// ServiceName 服务名，用于追踪资源和日志
	ServiceName = "resume-builder"
	// Version 服务版本
	Version = "1.0.0"

	// EventResumeGenerated 简历文档生成完成事件，同时是默认路由键
	EventResumeGenerated = "resume.generated"
	// ResumeEventsExchange 简历事件默认投递的 topic exchange
	ResumeEventsExchange = "resume.events.exchange"

	// 记录状态
	ResumeStatusGenerated = "GENERATED"

	// outbox 消息状态
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)
