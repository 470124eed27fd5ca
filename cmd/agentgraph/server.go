package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentgraph/api/handlers"
	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/internal/cache"
	"github.com/BaSui01/agentgraph/internal/database"
	"github.com/BaSui01/agentgraph/internal/metrics"
	"github.com/BaSui01/agentgraph/internal/queue"
	"github.com/BaSui01/agentgraph/internal/redisconn"
	"github.com/BaSui01/agentgraph/internal/server"
	"github.com/BaSui01/agentgraph/internal/telemetry"
	"github.com/BaSui01/agentgraph/workflow"
	"github.com/BaSui01/agentgraph/workflow/store"
)

// statsInterval 队列与连接池指标的采样间隔
const statsInterval = 15 * time.Second

// redisPollTimeout 是 Redis 队列 BLPOP 的等待时间
const redisPollTimeout = time.Second

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentGraph 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	telemetry *telemetry.Providers
	collector *metrics.Collector
	redis     *redisconn.Manager
	cache     *cache.Manager
	db        *database.PoolManager
	queue     *queue.Engine

	// 执行
	hub      *handlers.EventHub
	store    workflow.ExecutionStore
	executor *workflow.WorkflowExecutor

	cancel       context.CancelFunc
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	// 1. 遥测与指标
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers
	s.collector = metrics.NewCollector("agentgraph", s.logger)

	// 2. 外部依赖
	if err := s.initStorage(ctx); err != nil {
		return err
	}

	// 3. 执行器与队列
	if err := s.initExecutor(); err != nil {
		return err
	}
	if err := s.queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	// 4. HTTP 服务器
	if err := s.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.wg.Add(1)
	go s.pollStats(ctx)

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Bool("metrics_enabled", s.metricsManager != nil),
		zap.String("checkpoint_backend", s.cfg.Engine.CheckpointBackend),
		zap.String("execution_store", s.cfg.Engine.ExecutionStore),
		zap.String("queue_backend", s.cfg.Queue.Backend),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStorage 按配置连接 Redis 与 SQL 数据库
func (s *Server) initStorage(ctx context.Context) error {
	if s.cfg.NeedsRedis() {
		mgr, err := redisconn.NewManager(ctx, redisConfig(s.cfg.Redis), s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		s.redis = mgr
	}

	if s.cfg.NeedsDatabase() {
		pm, err := database.Open(ctx, databaseConfig(s.cfg.Database), s.logger)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		s.db = pm
		// AutoMigrate 确保表结构存在；生产环境可改用 agentgraph migrate
		if err := store.AutoMigrate(pm.DB()); err != nil {
			return fmt.Errorf("database auto-migrate failed: %w", err)
		}
	}
	return nil
}

// initExecutor 组装检查点存储、运行记录、队列与事件分发
func (s *Server) initExecutor() error {
	checkpoints, err := s.checkpointStore()
	if err != nil {
		return err
	}

	var records workflow.ExecutionStore
	switch s.cfg.Engine.ExecutionStore {
	case "sql":
		records = store.NewGormExecutionStore(s.db.DB(), store.WithTransactor(
			func(ctx context.Context, fn func(tx *gorm.DB) error) error {
				return s.db.WithTransactionRetry(ctx, 3, fn)
			},
		))
	default:
		records = workflow.NewMemoryExecutionStore(s.cfg.Engine.ExecutionStoreDir)
	}
	if ttl := s.cfg.Engine.RecordCacheTTL; ttl > 0 {
		s.cache, err = cache.NewManager(s.redis.Client(), cache.DefaultConfig(), s.logger)
		if err != nil {
			return fmt.Errorf("init record cache: %w", err)
		}
		records = cache.NewExecutionStore(records, s.cache, ttl, s.logger)
	}

	s.hub = handlers.NewEventHub(s.logger)
	s.store = handlers.NewNotifyingStore(records, s.hub)

	var backend queue.Backend
	switch s.cfg.Queue.Backend {
	case "redis":
		backend = queue.NewRedisBackend(s.redis.Client(), s.cfg.Queue.ListName, redisPollTimeout)
	default:
		backend = queue.NewMemoryBackend(s.cfg.Queue.Capacity)
	}
	s.queue = queue.NewEngine(backend, queue.Config{
		WorkerCount: s.cfg.Queue.Workers,
		MaxRetries:  s.cfg.Queue.MaxRetries,
		Backoff:     s.cfg.Queue.Backoff,
	}, s.logger)

	opts := append(baseExecutorOptions(s.cfg.Engine),
		workflow.WithExecutionStore(s.store),
		workflow.WithTaskQueue(s.queue),
		workflow.WithExecutorObserver(s.collector),
		workflow.WithExecutorEventCallback(s.hub.Callback()),
		workflow.WithExecutorLogger(s.logger),
	)
	if checkpoints != nil {
		opts = append(opts, workflow.WithCheckpointStore(checkpoints))
	}
	s.executor = workflow.NewWorkflowExecutor(opts...)
	return nil
}

// checkpointStore 按 checkpoint_backend 选择存储并加上指标
func (s *Server) checkpointStore() (workflow.CheckpointStore, error) {
	backend := s.cfg.Engine.CheckpointBackend
	var cs workflow.CheckpointStore
	switch backend {
	case "file":
		cs = workflow.NewFileCheckpointStore(s.cfg.Engine.CheckpointDir)
	case "redis":
		cs = store.NewRedisCheckpointStore(s.redis.Client())
	case "sql":
		cs = store.NewGormCheckpointStore(s.db.DB())
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
	return s.collector.InstrumentCheckpointStore(backend, cs), nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// Handler 构建带中间件链的 API 路由
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(Version, s.logger)
	if s.redis != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.redis.Ping))
	}
	if s.db != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.db.Ping))
	}
	health.RegisterCheck(handlers.NewPingCheck("queue", func(context.Context) error {
		if !s.queue.Running() {
			return errors.New("queue engine is not running")
		}
		return nil
	}))
	health.Register(mux, BuildTime, GitCommit)

	handlers.NewRunHandler(s.executor, s.store, s.hub, s.logger).Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Auth(AuthConfig{
			APIKeys:   s.cfg.Server.APIKeys,
			JWTSecret: s.cfg.Server.JWTSecret,
			SkipPaths: publicPaths,
		}, s.logger),
	)
}

// startHTTPServer 启动 API 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	s.httpManager = server.NewManager("api", s.Handler(ctx), server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}, s.logger)
	return s.httpManager.Start()
}

// startMetricsServer 启动 Metrics 服务器，metrics_port 为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.collector.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// pollStats 周期性地把队列和连接池状态写入指标
func (s *Server) pollStats(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	var prev metrics.QueueSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.queue.Stats(ctx)
			cur := metrics.QueueSnapshot{
				Queued:    st.Queued,
				Completed: st.Completed,
				Failed:    st.Failed,
				Retried:   st.Retried,
			}
			s.collector.RecordQueue(prev, cur)
			prev = cur

			if s.db != nil {
				ps := s.db.Stats()
				s.collector.RecordDBConnections(ps.OpenConnections, ps.Idle, ps.InUse)
			}
		}
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞到 ctx 结束或任一服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		return nil
	case err := <-s.httpManager.Errors():
		return fmt.Errorf("api server: %w", err)
	case err := <-metricsErrs:
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = server.DefaultConfig().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. 停止接收请求
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 停止后台任务（限流清理、指标采样）
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	// 3. 排空队列 worker
	if s.queue != nil {
		if err := s.queue.Stop(ctx); err != nil {
			s.logger.Error("queue shutdown error", zap.Error(err))
		}
	}

	// 4. Metrics 服务器与遥测
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	// 5. 外部连接
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 🔄 配置转换
// =============================================================================

func redisConfig(c config.RedisConfig) redisconn.Config {
	rc := redisconn.DefaultConfig()
	rc.Addr = c.Addr
	rc.Password = c.Password
	rc.DB = c.DB
	rc.TLS = c.TLS
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		rc.MinIdleConns = c.MinIdleConns
	}
	return rc
}

func databaseConfig(c config.DatabaseConfig) database.Config {
	pool := database.DefaultPoolConfig()
	if c.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = c.ConnMaxLifetime
	}
	return database.Config{
		Driver:   c.Driver,
		DSN:      c.DSN,
		Host:     c.Host,
		Port:     c.Port,
		Name:     c.Name,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
		Pool:     pool,
	}
}
