package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ResumeRecord 已生成简历的持久化记录，一个会话对应一条
type ResumeRecord struct {
	SessionID     string         `gorm:"type:char(36);primaryKey"`
	CandidateName string         `gorm:"type:varchar(255);not null"`
	Title         string         `gorm:"type:varchar(255);not null"`
	Email         string         `gorm:"type:varchar(255);index:idx_resume_records_email"`
	ResumeJSON    datatypes.JSON `gorm:"type:json;not null"` // 完整简历
	ArtifactKey   string         `gorm:"type:varchar(512);not null"`
	ContentType   string         `gorm:"type:varchar(255)"`
	SizeBytes     int64          `gorm:"not null"`
	SHA256        string         `gorm:"type:char(64);not null"`
	Status        string         `gorm:"type:varchar(50);default:'GENERATED';index:idx_resume_records_status"`
	CompletedAt   *time.Time     `gorm:"type:datetime(6);null"`
	GeneratedAt   time.Time      `gorm:"type:datetime(6);not null"`
	CreatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt     time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ResumeRecord) TableName() string {
	return "resume_records"
}

// ToJSON 将任意值序列化为 datatypes.JSON
func ToJSON(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
