//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"flashflow-studio/internal/application/production"
	"flashflow-studio/internal/application/quota"
	"flashflow-studio/internal/application/studio"
	"flashflow-studio/internal/config"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/internal/infrastructure/messaging"
	"flashflow-studio/internal/infrastructure/persistence/postgres"
	"flashflow-studio/internal/infrastructure/persistence/redis"
	"flashflow-studio/internal/interfaces/http/handler"
	"flashflow-studio/internal/interfaces/http/middleware"
	"flashflow-studio/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关（路由器 + 会话管理器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		QuotaSet,
		StudioSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化制作交接 worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		ProvideRedisClient,
		ProvideConsumer,
		production.NewBriefService,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeAdmin 初始化管理命令用到的数据层
func InitializeAdmin(ctx context.Context, cfg *config.Config) (*Admin, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		QuotaSet,
		production.NewBriefService,
		wire.Struct(new(Admin), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewCreativeRepository,
	postgres.NewProductionJobRepository,
	postgres.NewCreditRepository,
	postgres.NewUsageEventRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.CreativeRepository), new(*postgres.CreativeRepository)),
	wire.Bind(new(repository.ProductionJobRepository), new(*postgres.ProductionJobRepository)),
	wire.Bind(new(repository.CreditRepository), new(*postgres.CreditRepository)),
	wire.Bind(new(repository.UsageEventRepository), new(*postgres.UsageEventRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	wire.Bind(new(quota.BalanceCache), new(*redis.Cache)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(production.Publisher), new(*messaging.Producer)),
)

// QuotaSet 额度与用量
var QuotaSet = wire.NewSet(
	ProvideCreditChecker,
	quota.NewUsageRecorder,
	wire.Bind(new(service.CreditSource), new(*quota.CreditChecker)),
	wire.Bind(new(service.UsageRecorder), new(*quota.UsageRecorder)),
	wire.Bind(new(handler.QuotaReader), new(*quota.CreditChecker)),
)

// StudioSet 创作会话与成品生命周期
var StudioSet = wire.NewSet(
	ProvideCapability,
	ProvideComposer,
	production.NewHandoff,
	wire.Bind(new(studio.ProductionHandoff), new(*production.Handoff)),
	studio.NewLifecycle,
	studio.NewSessionManager,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewStudioHandler,
	handler.NewCreativeHandler,
	handler.NewQuotaHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRateLimitKeyFunc,
	router.New,
)
