package commence

import (
	"github.com/flaboy/aira-billing/pkg/config"
	"github.com/flaboy/aira-billing/pkg/database"
	"github.com/flaboy/aira-billing/pkg/events"
	"github.com/flaboy/aira-billing/pkg/gateway"
	"github.com/flaboy/aira-billing/pkg/notifier"
	"github.com/flaboy/aira-billing/pkg/webhook"
)

// Start 启动服务组件，返回装配完成的Webhook引擎
func Start(cfg *config.BillingConfig) (*webhook.Engine, error) {
	config.Config = cfg

	if err := database.Open(cfg.Database.Driver, cfg.Database.DSN); err != nil {
		return nil, err
	}

	// 实时推送通道注册为事件处理器
	n := notifier.NewRedisNotifier(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	events.SetEventHandler(n)

	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)

	engine := webhook.NewEngine(database.Database(), gatewayClient, cfg.Commission.DefaultPercentage)
	return engine, nil
}

// RegisterEventHandler 允许业务系统替换默认的状态变更通知实现
func RegisterEventHandler(handler events.EventHandler) {
	events.SetEventHandler(handler)
}
