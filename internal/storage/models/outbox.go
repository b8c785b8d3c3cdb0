package models

import "time"

// OutboxMessage 待发布的 resume 事件，与 ResumeRecord 在同一事务中写入，由中继投递到 RabbitMQ
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	MessageID        string     `gorm:"type:char(36);not null;uniqueIndex"` // 消费端去重
	SessionID        string     `gorm:"type:char(36);not null;index"`
	EventType        string     `gorm:"type:varchar(64);not null;index"`
	Payload          string     `gorm:"type:json;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	Attempts         int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,sort:asc"`
	PublishedAt      *time.Time `gorm:"type:datetime(6);null"`
	LastError        string     `gorm:"type:text"`
}

func (OutboxMessage) TableName() string {
	return "resume_outbox"
}
