package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"resume-builder/internal/config"
)

// Storage 存储管理器，聚合所有外部存储依赖。未配置的组件为 nil，由调用方回退到进程内实现
type Storage struct {
	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis

	logger zerolog.Logger
}

// NewStorage 按配置初始化存储组件。单个组件失败只记录警告，已配置的组件全部失败时返回错误
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{logger: logger}
	var err error
	var initErrors []string
	configured := 0

	if cfg.MinIO.Endpoint != "" {
		configured++
		minioLogger := logger
		if cfg.Logger.Level != "debug" && !cfg.MinIO.EnableTestLogging {
			minioLogger = logger.Level(zerolog.InfoLevel)
		}
		storage.MinIO, err = NewMinIO(ctx, &cfg.MinIO, minioLogger)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MinIO失败")
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		configured++
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化RabbitMQ失败")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	if cfg.MySQL.Enabled() {
		configured++
		storage.MySQL, err = NewMySQL(&cfg.MySQL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MySQL失败")
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	if cfg.Redis.Address != "" {
		configured++
		logger.Info().Str("address", cfg.Redis.Address).Msg("初始化Redis")
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化Redis失败")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	} else {
		logger.Info().Msg("Redis未配置，会话只保存在内存中")
	}

	if configured > 0 && len(initErrors) == configured {
		return nil, fmt.Errorf("所有存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}
	if len(initErrors) > 0 {
		logger.Warn().Str("failed", strings.Join(initErrors, "; ")).Msg("部分存储组件初始化失败")
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			s.logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			s.logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
