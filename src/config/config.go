package config

import (
	"fmt"

	"github.com/xpwu/go-config/configs"

	"derivbot/src/rules"
)

// Config 主配置结构
type Config struct {
	Robot    RobotConfig    `conf:"robot,机器人配置"`
	Strategy StrategyConfig `conf:"strategy,策略配置"`
	Feed     FeedConfig     `conf:"feed,行情源配置"`
	Broker   BrokerConfig   `conf:"broker,经纪商配置"`
	Database DatabaseConfig `conf:"database,数据库配置"`
}

// RobotConfig 机器人运行参数
type RobotConfig struct {
	Symbol               string  `conf:"symbol,交易标的"`
	HeartbeatSeconds     int     `conf:"heartbeat_seconds,心跳间隔(秒)"`
	BaseStake            float64 `conf:"base_stake,基础注金"`
	MaxHoldSeconds       int     `conf:"max_hold_seconds,最长持仓时间(秒)"`
	CooldownSeconds      int     `conf:"cooldown_seconds,平仓冷却时间(秒)"`
	OrderTimeoutSeconds  int     `conf:"order_timeout_seconds,订单回执超时(秒)"`
	ContractSeconds      int     `conf:"contract_seconds,合约时长(秒)"`
	HistorySize          int     `conf:"history_size,保留历史成交条数"`
	MartingaleEnabled    bool    `conf:"martingale_enabled,启用马丁格尔"`
	MartingaleMultiplier float64 `conf:"martingale_multiplier,马丁格尔注金倍数"`
	MaxMartingaleLevels  int     `conf:"max_martingale_levels,马丁格尔层数上限"`
}

// StrategyConfig 策略参数
type StrategyConfig struct {
	Name                   string  `conf:"name,策略名称"`
	MinConfidenceThreshold float64 `conf:"min_confidence_threshold,最低信心阈值"`
	StopLossPercent        float64 `conf:"stop_loss_percent,止损百分比"`
	TakeProfitPercent      float64 `conf:"take_profit_percent,止盈百分比"`
}

// FeedConfig 行情源配置
type FeedConfig struct {
	Mode    string        `conf:"mode,行情模式(simulated|binance)"`
	Binance BinanceConfig `conf:"binance,币安行情配置"`
}

// BinanceConfig 币安API配置
type BinanceConfig struct {
	APIKey         string `conf:"api_key,API密钥"`
	SecretKey      string `conf:"secret_key,API私钥"`
	BaseURL        string `conf:"base_url,API地址"`
	Symbol         string `conf:"symbol,行情交易对"`
	Interval       string `conf:"interval,K线周期"`
	RefreshSeconds int    `conf:"refresh_seconds,行情刷新间隔(秒)"`
}

// BrokerConfig 经纪商配置
type BrokerConfig struct {
	Mode  string      `conf:"mode,经纪商模式(paper|deriv)"`
	Paper PaperConfig `conf:"paper,模拟经纪商配置"`
	Deriv DerivConfig `conf:"deriv,Deriv配置"`
}

// PaperConfig 模拟经纪商配置
type PaperConfig struct {
	InitialBalance float64 `conf:"initial_balance,初始余额"`
}

// DerivConfig Deriv API配置
type DerivConfig struct {
	Endpoint string `conf:"endpoint,websocket地址"`
	AppID    string `conf:"app_id,应用ID"`
	APIToken string `conf:"api_token,API令牌"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled  bool   `conf:"enabled,启用持久化"`
	Host     string `conf:"host,主机"`
	Port     string `conf:"port,端口"`
	User     string `conf:"user,用户名"`
	Password string `conf:"password,密码"`
	DBName   string `conf:"dbname,数据库名"`
	SSLMode  string `conf:"sslmode,SSL模式"`
}

// AppConfig 全局配置实例
var AppConfig = &Config{
	Robot: RobotConfig{
		Symbol:               "frxEURUSD",
		HeartbeatSeconds:     1,
		BaseStake:            100,
		MaxHoldSeconds:       120,
		CooldownSeconds:      10,
		OrderTimeoutSeconds:  10,
		ContractSeconds:      120,
		HistorySize:          10,
		MartingaleEnabled:    true,
		MartingaleMultiplier: 2.0,
		MaxMartingaleLevels:  3,
	},
	Strategy: StrategyConfig{
		Name:                   "EdgeAI Engine",
		MinConfidenceThreshold: 70,
		StopLossPercent:        2.0,
		TakeProfitPercent:      4.0,
	},
	Feed: FeedConfig{
		Mode: "simulated",
		Binance: BinanceConfig{
			BaseURL:        "https://api.binance.com",
			Symbol:         "EURUSDT",
			Interval:       "1m",
			RefreshSeconds: 15,
		},
	},
	Broker: BrokerConfig{
		Mode:  "paper",
		Paper: PaperConfig{InitialBalance: 10000},
		Deriv: DerivConfig{
			Endpoint: "wss://ws.derivws.com/websockets/v3",
		},
	},
	Database: DatabaseConfig{
		Enabled: false,
		Host:    "localhost",
		Port:    "5432",
		User:    "postgres",
		DBName:  "derivbot",
		SSLMode: "disable",
	},
}

// 在包的 init() 函数中注册配置
func init() {
	configs.Unmarshal(AppConfig)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Robot.Symbol == "" {
		return fmt.Errorf("robot symbol cannot be empty")
	}
	if c.Robot.HeartbeatSeconds <= 0 {
		return fmt.Errorf("heartbeat must be positive")
	}
	if c.Robot.BaseStake <= 0 {
		return fmt.Errorf("base stake must be positive")
	}
	if c.Robot.MartingaleEnabled {
		if c.Robot.MartingaleMultiplier <= 1 {
			return fmt.Errorf("martingale multiplier must be greater than 1")
		}
		if c.Robot.MaxMartingaleLevels <= 0 {
			return fmt.Errorf("max martingale levels must be positive")
		}
	}

	if _, ok := rules.Lookup(c.Strategy.Name); !ok {
		return fmt.Errorf("unknown strategy: %s (available: %v)", c.Strategy.Name, rules.Names())
	}
	if c.Strategy.MinConfidenceThreshold < 0 || c.Strategy.MinConfidenceThreshold > 100 {
		return fmt.Errorf("min confidence threshold must be between 0 and 100")
	}
	if c.Strategy.StopLossPercent <= 0 || c.Strategy.TakeProfitPercent <= 0 {
		return fmt.Errorf("stop loss and take profit must be positive")
	}

	switch c.Feed.Mode {
	case "simulated":
	case "binance":
		if c.Feed.Binance.Symbol == "" {
			return fmt.Errorf("binance feed symbol cannot be empty")
		}
	default:
		return fmt.Errorf("invalid feed mode: %s", c.Feed.Mode)
	}

	switch c.Broker.Mode {
	case "paper":
		if c.Broker.Paper.InitialBalance <= 0 {
			return fmt.Errorf("paper broker initial balance must be positive")
		}
	case "deriv":
		if c.Broker.Deriv.AppID == "" || c.Broker.Deriv.APIToken == "" {
			return fmt.Errorf("deriv app_id and api_token are required in deriv mode")
		}
	default:
		return fmt.Errorf("invalid broker mode: %s", c.Broker.Mode)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host and dbname are required when persistence is enabled")
		}
	}
	return nil
}
