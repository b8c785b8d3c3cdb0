package storage

import "time"

// ResumeGeneratedEvent 简历文档生成完成事件，经 outbox 发布到 RabbitMQ
type ResumeGeneratedEvent struct {
	MessageID   string    `json:"message_id"` // 消费端据此去重
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	ArtifactKey string    `json:"artifact_key"` // 对象存储中的路径
	FileName    string    `json:"file_name"`
	SHA256      string    `json:"sha256"`
	SizeBytes   int64     `json:"size_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}
