package logger // 应用日志，基于 zerolog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger 全局日志实例
	Logger = log.Logger
)

// Config 日志配置
type Config struct {
	Level        string `json:"level" yaml:"level"`                 // debug, info, warn, error
	Format       string `json:"format" yaml:"format"`               // json 或 pretty
	TimeFormat   string `json:"time_format" yaml:"time_format"`     // 时间戳格式
	ReportCaller bool   `json:"report_caller" yaml:"report_caller"` // 是否输出调用位置
	File         string `json:"file" yaml:"file"`                   // 可选，额外写入的日志文件
}

// Init 根据配置初始化全局日志，返回构建好的 logger 供 hertz 适配器使用。
// 返回的 io.Closer 用于关闭日志文件，未配置文件时为空操作。
func Init(config Config) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	var output io.Writer = os.Stdout
	if config.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: config.TimeFormat,
		}
	}

	var closer io.Closer = nopCloser{}
	if config.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return Logger, closer, fmt.Errorf("创建日志目录失败: %w", err)
		}
		f, err := os.OpenFile(config.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return Logger, closer, fmt.Errorf("打开日志文件 %s 失败: %w", config.File, err)
		}
		output = zerolog.MultiLevelWriter(output, f)
		closer = f
	}

	ctx := zerolog.New(output).Level(level).With().Timestamp()
	if config.ReportCaller {
		ctx = ctx.Caller()
	}

	Logger = ctx.Logger()
	log.Logger = Logger
	return Logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Debug 调试级别日志
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 信息级别日志
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 警告级别日志
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 错误级别日志
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 致命错误，记录后进程退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 从上下文取 logger，上下文中没有时返回全局 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &Logger
}

// WithContext 将全局 logger 放入上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}

// With 返回附带会话标识的子 logger 上下文
func With(ctx context.Context, sessionID string) context.Context {
	l := Logger.With().Str("session_id", sessionID).Logger()
	return l.WithContext(ctx)
}
