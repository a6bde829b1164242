package wire

import (
	"context"
	"fmt"
	"os"

	"flashflow-studio/internal/application/production"
	"flashflow-studio/internal/application/quota"
	"flashflow-studio/internal/application/studio"
	"flashflow-studio/internal/config"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/internal/infrastructure/capability"
	"flashflow-studio/internal/infrastructure/llm"
	"flashflow-studio/internal/infrastructure/messaging"
	"flashflow-studio/internal/infrastructure/persistence/postgres"
	"flashflow-studio/internal/infrastructure/persistence/redis"
	"flashflow-studio/internal/interfaces/http/handler"
	"flashflow-studio/internal/interfaces/http/middleware"
	"flashflow-studio/internal/interfaces/http/router"
	"flashflow-studio/pkg/logger"
)

// App API 网关依赖
type App struct {
	Router   *router.Router
	Sessions *studio.SessionManager
}

// Worker 制作交接 worker 依赖
type Worker struct {
	Consumer *messaging.Consumer
	Briefs   *production.BriefService
}

// Admin 管理命令依赖
type Admin struct {
	PgClient  *postgres.Client
	Creatives *postgres.CreativeRepository
	Credits   *postgres.CreditRepository
	Checker   *quota.CreditChecker
	Briefs    *production.BriefService
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideConsumer 提供交接事件消费者
func ProvideConsumer(redisClient *redis.Client, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamCreativeApproved,
		Group:         messaging.ConsumerGroupHandoffWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

// ProvideCreditChecker 提供额度检查器
func ProvideCreditChecker(cfg *config.Config, accounts repository.CreditRepository, events repository.UsageEventRepository, cache quota.BalanceCache) *quota.CreditChecker {
	return quota.NewCreditChecker(accounts, events, cache, cfg.Cache.CreditTTL)
}

// ProvideCapability 按配置选择生成能力后端。进程内模型需要先在服务端校验额度。
func ProvideCapability(ctx context.Context, cfg *config.Config, checker *quota.CreditChecker) (service.GenerationCapability, error) {
	switch cfg.Capability.Backend {
	case "", "http":
		return capability.NewHTTPClient(&cfg.Capability), nil
	case "llm":
		logger.Info(ctx, "using in-process llm capability", "provider", cfg.Capability.Provider)
		next := capability.NewLLMCapability(llm.NewEinoFactory(cfg), &cfg.Capability)
		return quota.NewMeteredCapability(next, checker), nil
	default:
		return nil, fmt.Errorf("unknown capability backend %q", cfg.Capability.Backend)
	}
}

// ProvideComposer 由配置中的风格预设构建请求组装器
func ProvideComposer(cfg *config.Config) *studio.Composer {
	return studio.NewComposer(studio.PresetsFromConfig(cfg.Studio.Presets))
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, redisClient *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(pg, redisClient, cfg.App.Version)
}

// ProvideRateLimitKeyFunc 生成接口限流 key
func ProvideRateLimitKeyFunc() middleware.KeyFunc {
	return redis.BuildRateLimitKey
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
