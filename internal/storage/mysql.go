package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"resume-builder/internal/config"
	"resume-builder/internal/constants"
	"resume-builder/internal/storage/models"
	"resume-builder/internal/types"
)

var mysqlTracer = otel.Tracer("resume-builder/storage/mysql")

type spanContextKey struct{}

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("INSERT")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	return nil
}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, spanContextKey{}, span)
	}
}

func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanContextKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			// 记录不存在属于正常业务情况
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			span.SetAttributes(attribute.String("error.type", "database_error"))
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		disableErrSkip: true,
	}
}

// MySQL 提供关系数据库功能，保存生成记录和 outbox 消息
type MySQL struct {
	db     *gorm.DB
	cfg    *config.MySQLConfig
	logger zerolog.Logger
}

// BuildDSN 未显式配置 dsn 时由连接参数拼接
func BuildDSN(cfg *config.MySQLConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)
}

// NewMySQL 创建MySQL客户端并迁移表结构
func NewMySQL(cfg *config.MySQLConfig, logger zerolog.Logger) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}
	logger = logger.With().Str("component", "mysql").Logger()

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 3:
		logLevel = gormlogger.Warn
	case 4:
		logLevel = gormlogger.Info
	default:
		logLevel = gormlogger.Error
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormlogger.New(log.New(logger, "", 0), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt: true,
	}

	db, err := gorm.Open(mysql.Open(BuildDSN(cfg)), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg, logger: logger}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	logger.Info().Msg("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

func (m *MySQL) autoMigrateSchema() error {
	silentDB := m.db.Session(&gorm.Session{Logger: m.db.Logger.LogMode(gormlogger.Silent)})
	if err := silentDB.AutoMigrate(
		&models.ResumeRecord{},
		&models.OutboxMessage{},
	); err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// SaveGenerated 在同一事务中写入生成记录和 outbox 消息。重复写入同一会话时更新记录
func (m *MySQL) SaveGenerated(ctx context.Context, record *models.ResumeRecord, msg *models.OutboxMessage) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.SaveGenerated", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.name", m.cfg.Database),
		attribute.String("session.id", record.SessionID),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).Create(record).Error; err != nil {
			return fmt.Errorf("写入简历记录失败: %w", err)
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("写入outbox消息失败: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetResumeRecord 按会话查询生成记录
func (m *MySQL) GetResumeRecord(ctx context.Context, sessionID string) (*models.ResumeRecord, error) {
	var record models.ResumeRecord
	if err := m.db.WithContext(ctx).First(&record, "session_id = ?", sessionID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ResumeRecorder 记录生成结果并通过 outbox 发布 resume.generated 事件
type ResumeRecorder struct {
	db         *MySQL
	exchange   string
	routingKey string
}

// NewResumeRecorder 创建生成结果记录器
func NewResumeRecorder(db *MySQL, exchange, routingKey string) *ResumeRecorder {
	if routingKey == "" {
		routingKey = constants.EventResumeGenerated
	}
	return &ResumeRecorder{db: db, exchange: exchange, routingKey: routingKey}
}

// RecordGenerated 保存生成记录，并在同一事务中写入待发布事件
func (r *ResumeRecorder) RecordGenerated(ctx context.Context, sessionID string, resume types.Resume, artifact types.Artifact, completedAt time.Time) error {
	record, msg, err := buildGeneratedRecord(sessionID, resume, artifact, completedAt, r.exchange, r.routingKey)
	if err != nil {
		return err
	}
	return r.db.SaveGenerated(ctx, record, msg)
}

func buildGeneratedRecord(sessionID string, resume types.Resume, artifact types.Artifact, completedAt time.Time, exchange, routingKey string) (*models.ResumeRecord, *models.OutboxMessage, error) {
	resumeJSON, err := models.ToJSON(resume)
	if err != nil {
		return nil, nil, fmt.Errorf("序列化简历失败: %w", err)
	}

	record := &models.ResumeRecord{
		SessionID:     sessionID,
		CandidateName: resume.Name,
		Title:         resume.Title,
		Email:         resume.Email,
		ResumeJSON:    resumeJSON,
		ArtifactKey:   artifact.Key,
		ContentType:   artifact.ContentType,
		SizeBytes:     artifact.Size,
		SHA256:        artifact.SHA256,
		Status:        constants.ResumeStatusGenerated,
		GeneratedAt:   artifact.CreatedAt,
	}
	if !completedAt.IsZero() {
		t := completedAt
		record.CompletedAt = &t
	}

	event := ResumeGeneratedEvent{
		MessageID:   uuid.NewString(),
		SessionID:   sessionID,
		Name:        resume.Name,
		Title:       resume.Title,
		ArtifactKey: artifact.Key,
		FileName:    artifact.FileName,
		SHA256:      artifact.SHA256,
		SizeBytes:   artifact.Size,
		GeneratedAt: artifact.CreatedAt,
	}
	payload, err := models.ToJSON(event)
	if err != nil {
		return nil, nil, fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &models.OutboxMessage{
		MessageID:        event.MessageID,
		SessionID:        sessionID,
		EventType:        constants.EventResumeGenerated,
		Payload:          string(payload),
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           constants.OutboxStatusPending,
	}
	return record, msg, nil
}
