package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"

	"resume-builder/internal/config"
	"resume-builder/internal/document"
)

// MinIO 提供对象存储功能，保存生成的简历文档
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger zerolog.Logger
}

// 确保MinIO实现了document.BlobStore接口
var _ document.BlobStore = (*MinIO)(nil)

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	logger = logger.With().Str("component", "minio").Logger()
	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("初始化MinIO客户端")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.BucketName
	if bucket == "" {
		bucket = "resumes"
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: bucket,
		logger: logger,
	}

	if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", bucket, err)
	}

	if cfg.ResumeExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, bucket, "expire-generated-resumes", cfg.ResumeExpireDays); err != nil {
			// 生命周期规则不影响读写，失败只记录
			logger.Warn().Err(err).Msg("设置生命周期规则失败")
		}
	}

	logger.Info().Msg("MinIO客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		m.logger.Debug().Str("bucket", bucketName).Msg("存储桶已存在")
		return nil
	}

	m.logger.Info().Str("bucket", bucketName).Str("location", location).Msg("存储桶不存在，正在创建")
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}

	if err := m.client.SetBucketLifecycle(ctx, bucketName, cfg); err != nil {
		return err
	}
	m.logger.Info().Str("bucket", bucketName).Int("expire_days", expiryDays).Msg("生命周期规则已设置")
	return nil
}

// PutObject 上传文档
func (m *MinIO) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	info, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, key, err)
	}
	if m.cfg.EnableTestLogging {
		m.logger.Debug().Str("key", key).Int64("size", info.Size).Str("etag", info.ETag).Msg("对象已上传")
	}
	return nil
}

// GetObject 下载文档，对象不存在时返回 document.ErrBlobNotFound
func (m *MinIO) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s/%s", document.ErrBlobNotFound, m.bucket, key)
		}
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.bucket, key, err)
	}
	return data, nil
}
