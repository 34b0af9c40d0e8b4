package config

import (
	"strings"

	"github.com/spf13/viper"
)

type BillingConfig struct {
	HTTP struct {
		Listen string `mapstructure:"LISTEN"`
	} `mapstructure:"HTTP"`

	Database struct {
		Driver string `mapstructure:"DRIVER"` // postgres, mysql
		DSN    string `mapstructure:"DSN"`
	} `mapstructure:"DATABASE"`

	Redis struct {
		Addr     string `mapstructure:"ADDR"`
		Password string `mapstructure:"PASSWORD"`
		DB       int    `mapstructure:"DB"`
	} `mapstructure:"REDIS"`

	// 支付网关配置
	Gateway struct {
		BaseURL      string `mapstructure:"BASE_URL"`
		APIKey       string `mapstructure:"API_KEY"`
		WebhookToken string `mapstructure:"WEBHOOK_TOKEN"`
	} `mapstructure:"GATEWAY"`

	// 推广佣金默认配置
	Commission struct {
		DefaultPercentage float64 `mapstructure:"DEFAULT_PERCENTAGE"`
	} `mapstructure:"COMMISSION"`
}

var Config *BillingConfig

// Load 从环境变量加载配置，前缀 BILLING_
func Load() (*BillingConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("HTTP.LISTEN", ":8080")
	v.SetDefault("DATABASE.DRIVER", "postgres")
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("COMMISSION.DEFAULT_PERCENTAGE", 10.0)

	// AutomaticEnv 不会填充 Unmarshal，需要显式 BindEnv
	for _, key := range []string{
		"HTTP.LISTEN",
		"DATABASE.DRIVER", "DATABASE.DSN",
		"REDIS.ADDR", "REDIS.PASSWORD", "REDIS.DB",
		"GATEWAY.BASE_URL", "GATEWAY.API_KEY", "GATEWAY.WEBHOOK_TOKEN",
		"COMMISSION.DEFAULT_PERCENTAGE",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := &BillingConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
