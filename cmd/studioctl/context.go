package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"flashflow-studio/internal/config"
	"flashflow-studio/internal/wire"
	"flashflow-studio/pkg/logger"
)

// commandContext 按需初始化配置与数据层，多个子命令共用
type commandContext struct {
	configDir *string

	once    sync.Once
	admin   *wire.Admin
	cleanup func()
	err     error
}

func newCommandContext(configDir *string) *commandContext {
	return &commandContext{configDir: configDir}
}

func (c *commandContext) ensureAdmin(ctx context.Context) (*wire.Admin, error) {
	c.once.Do(func() {
		_ = godotenv.Load()

		dir := "configs"
		if c.configDir != nil && strings.TrimSpace(*c.configDir) != "" {
			dir = strings.TrimSpace(*c.configDir)
		}
		cfg, err := config.LoadFrom(dir)
		if err != nil {
			c.err = err
			return
		}
		// 命令输出走 stdout，日志只保留告警并写到 stderr
		logger.InitWithWriter(os.Stderr, "warn", "text")

		c.admin, c.cleanup, c.err = wire.InitializeAdmin(ctx, cfg)
	})
	return c.admin, c.err
}

func (c *commandContext) close() {
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
}
