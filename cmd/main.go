package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"resume-builder/internal/api/handler"
	"resume-builder/internal/api/router"
	"resume-builder/internal/config"
	"resume-builder/internal/constants"
	"resume-builder/internal/document"
	"resume-builder/internal/enhancer"
	"resume-builder/internal/extractor"
	"resume-builder/internal/llm"
	appCoreLogger "resume-builder/internal/logger"
	"resume-builder/internal/metrics"
	"resume-builder/internal/outbox"
	"resume-builder/internal/ratelimit"
	"resume-builder/internal/service"
	"resume-builder/internal/session"
	"resume-builder/internal/storage"
	"resume-builder/internal/tracing"
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	logger, logCloser, err := appCoreLogger.Init(cfg.Logger)
	if err != nil {
		glog.Fatalf("初始化日志失败: %v", err)
	}
	defer logCloser.Close()
	glog.SetLogger(hertzadapter.From(logger))
	glog.SetLevel(hertzLevel(logger.GetLevel()))
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing, constants.ServiceName, constants.Version)
	if err != nil {
		glog.Fatalf("初始化追踪失败: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg, logger)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	script, err := cfg.BuildScript()
	if err != nil {
		glog.Fatalf("加载问卷失败: %v", err)
	}

	var storeOpts []session.StoreOption
	if storageManager.Redis != nil {
		storeOpts = append(storeOpts, session.WithSnapshotStore(storageManager.Redis))
		glog.Info("会话快照保存到Redis")
	}
	store := session.NewStore(script, cfg.SessionOptions(), cfg.StoreConfig(), storeOpts...)
	go store.Run(ctx)

	ext, err := buildExtractor(cfg)
	if err != nil {
		glog.Fatalf("初始化回答提取器失败: %v", err)
	}

	var blobs document.BlobStore = document.NewMemoryBlobStore()
	if storageManager.MinIO != nil {
		blobs = storageManager.MinIO
	} else {
		glog.Warn("MinIO未配置，生成的文档只保存在内存中")
	}
	generator := document.NewGenerator(document.DocxRenderer{}, blobs,
		document.WithKeyPrefix(cfg.Generation.KeyPrefix))

	svcOpts := []service.Option{
		service.WithMetrics(metrics.NewMetrics()),
		service.WithGenerationTimeout(config.GetDuration(cfg.Generation.Timeout, service.DefaultGenerationTimeout)),
	}

	if cfg.Generation.Enhance {
		chatModel, err := newChatModel(cfg)
		if err != nil {
			glog.Warnf("初始化润色模型失败，生成时不润色: %v", err)
		} else {
			svcOpts = append(svcOpts, service.WithEnhancer(enhancer.New(chatModel,
				enhancer.WithRateLimiter(newLimiter(cfg)),
				enhancer.WithTimeout(config.GetDuration(cfg.Generation.EnhanceTimeout, enhancer.DefaultTimeout)),
			)))
			glog.Info("生成前使用模型润色简历")
		}
	}

	var messageRelay *outbox.MessageRelay
	if storageManager.MySQL != nil {
		recorder := storage.NewResumeRecorder(storageManager.MySQL,
			cfg.RabbitMQ.ResumeEventsExchange, cfg.RabbitMQ.GeneratedRoutingKey)
		svcOpts = append(svcOpts, service.WithRecorder(recorder))

		if storageManager.RabbitMQ != nil {
			messageRelay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, logger,
				outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.RelayInterval, 5*time.Second)),
				outbox.WithBatchSize(cfg.RabbitMQ.RelayBatchSize),
			)
			messageRelay.Start()
			glog.Info("消息中继服务已启动")
		}
	}

	svc := service.New(store, ext, generator, svcOpts...)
	interviewHandler := handler.NewInterviewHandler(svc)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(requestLogger())

	router.RegisterRoutes(h, interviewHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	if messageRelay != nil {
		messageRelay.Stop()
		glog.Info("消息中继服务已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		config.GetDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		glog.Errorf("关闭追踪失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// buildExtractor 按配置选择提取方式。hybrid 模式下缺少 API 密钥时只使用规则提取
func buildExtractor(cfg *config.Config) (extractor.Extractor, error) {
	rules := extractor.NewRules()
	if cfg.Extractor.Mode == config.ExtractorModeRule {
		glog.Info("使用规则提取回答")
		return rules, nil
	}

	chatModel, err := newChatModel(cfg)
	if err != nil {
		if cfg.Extractor.Mode == config.ExtractorModeHybrid {
			glog.Warnf("初始化模型失败，回退到规则提取: %v", err)
			return rules, nil
		}
		return nil, err
	}

	llmExtractor := extractor.NewLLM(chatModel, extractor.WithRateLimiter(newLimiter(cfg)))

	if cfg.Extractor.Mode == config.ExtractorModeLLM {
		glog.Infof("使用模型提取回答: %s", cfg.ExtractorModel())
		return llmExtractor, nil
	}
	glog.Infof("优先使用规则提取，无法识别时使用模型: %s", cfg.ExtractorModel())
	return extractor.NewHybrid(rules, llmExtractor), nil
}

func newChatModel(cfg *config.Config) (*llm.QwenChatModel, error) {
	return llm.NewQwenChatModel(llm.Config{
		APIKey:      cfg.Aliyun.APIKey,
		APIURL:      cfg.Aliyun.APIURL,
		Model:       cfg.ExtractorModel(),
		Temperature: float32(cfg.Extractor.Temperature),
		MaxTokens:   cfg.Extractor.MaxTokens,
	})
}

func newLimiter(cfg *config.Config) *ratelimit.TokenBucket {
	return ratelimit.NewTokenBucket(cfg.Extractor.QPM, cfg.Extractor.QPM).
		WithRetryPolicy(time.Second, cfg.Extractor.MaxRetries)
}

// requestLogger 记录每个请求的方法、路径、状态码和耗时
func requestLogger() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		appCoreLogger.Ctx(c).Info().
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("HTTP请求")
	}
}

func hertzLevel(level zerolog.Level) glog.Level {
	switch level {
	case zerolog.TraceLevel:
		return glog.LevelTrace
	case zerolog.DebugLevel:
		return glog.LevelDebug
	case zerolog.WarnLevel:
		return glog.LevelWarn
	case zerolog.ErrorLevel:
		return glog.LevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return glog.LevelFatal
	default:
		return glog.LevelInfo
	}
}
