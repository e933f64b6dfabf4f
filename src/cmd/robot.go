package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-log/log"

	"derivbot/src/binance"
	"derivbot/src/broker"
	"derivbot/src/broker/deriv"
	"derivbot/src/config"
	"derivbot/src/database"
	"derivbot/src/feed"
	"derivbot/src/learning"
	"derivbot/src/market"
	"derivbot/src/risk"
	"derivbot/src/robot"
)

// RegisterRobotCmd 注册机器人运行命令
func RegisterRobotCmd() {
	var symbol string
	var strategyName string
	var live bool
	var dry bool
	var minConfidence float64
	var baseStake float64
	var noMartingale bool

	cmd.RegisterCmd("robot", "run the autonomous trading robot", func(args *arg.Arg) {
		args.String(&symbol, "s", "trading symbol (e.g., frxEURUSD)")
		args.String(&strategyName, "strategy", "strategy name (see 'strategies' command)")
		args.Bool(&live, "live", "trade through the Deriv broker (default: paper)")
		args.Bool(&dry, "dry", "force paper broker even if config says deriv")
		args.Float64(&minConfidence, "min-confidence", "minimum confidence threshold (default: from config)")
		args.Float64(&baseStake, "stake", "base stake per trade (default: from config)")
		args.Bool(&noMartingale, "no-martingale", "disable martingale progression")
		args.Parse()

		cfg := config.AppConfig
		if symbol != "" {
			cfg.Robot.Symbol = symbol
		}
		if strategyName != "" {
			cfg.Strategy.Name = strategyName
		}
		if minConfidence > 0 {
			cfg.Strategy.MinConfidenceThreshold = minConfidence
		}
		if baseStake > 0 {
			cfg.Robot.BaseStake = baseStake
		}
		if noMartingale {
			cfg.Robot.MartingaleEnabled = false
		}
		if live {
			cfg.Broker.Mode = "deriv"
		}
		if dry {
			cfg.Broker.Mode = "paper"
		}

		if err := cfg.Validate(); err != nil {
			fmt.Printf("❌ 配置验证失败: %v\n", err)
			os.Exit(1)
		}

		if err := runRobot(cfg); err != nil {
			fmt.Printf("❌ 机器人运行失败: %v\n", err)
			os.Exit(1)
		}
	})
}

func runRobot(cfg *config.Config) error {
	ctx := context.Background()
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Main")

	// 行情源
	f, toggle, cleanup, err := buildFeed(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// 经纪商
	brk, err := buildBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer brk.Close()

	// 学习引擎，启用了持久化时恢复历史表现
	learn := learning.NewEngine()
	var store *database.Store
	if cfg.Database.Enabled {
		store, err = database.NewStore(cfg.Database.Host, cfg.Database.Port,
			cfg.Database.User, cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer store.Close()

		if err := store.CreateTables(ctx); err != nil {
			return err
		}
		perf, err := store.LoadPerformance(ctx)
		if err != nil {
			return err
		}
		learn.Restore(perf)
		logger.Info(fmt.Sprintf("学习状态已恢复: indicators=%d", len(perf)))
	}

	strat := &market.Strategy{
		Name:                   cfg.Strategy.Name,
		MinConfidenceThreshold: int(cfg.Strategy.MinConfidenceThreshold),
		Parameters: market.StrategyParameters{
			StopLossPercent:   cfg.Strategy.StopLossPercent,
			TakeProfitPercent: cfg.Strategy.TakeProfitPercent,
		},
	}

	sizer := &risk.Sizer{
		BaseStake:         decimal.NewFromFloat(cfg.Robot.BaseStake),
		MartingaleEnabled: cfg.Robot.MartingaleEnabled,
		Multiplier:        decimal.NewFromFloat(cfg.Robot.MartingaleMultiplier),
		MaxLevels:         cfg.Robot.MaxMartingaleLevels,
	}

	bot := robot.New(robot.Config{
		Symbol:           cfg.Robot.Symbol,
		Heartbeat:        time.Duration(cfg.Robot.HeartbeatSeconds) * time.Second,
		MaxHoldTime:      time.Duration(cfg.Robot.MaxHoldSeconds) * time.Second,
		Cooldown:         time.Duration(cfg.Robot.CooldownSeconds) * time.Second,
		OrderTimeout:     time.Duration(cfg.Robot.OrderTimeoutSeconds) * time.Second,
		ContractDuration: time.Duration(cfg.Robot.ContractSeconds) * time.Second,
		HistorySize:      cfg.Robot.HistorySize,
	}, f, toggle, brk, strat, sizer, learn)

	if store != nil {
		bot.SetArchiver(store)
	}

	stopped := make(chan struct{})
	bot.OnStatusChanged(func(s robot.Status) {
		if s == robot.StatusStopped {
			select {
			case stopped <- struct{}{}:
			default:
			}
		}
	})

	// SIGINT 先停用引擎让持仓走完退出流程，再次 SIGINT 强制退出
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("收到退出信号，等待持仓平仓后停机")
		toggle.SetEnabled(false)
		select {
		case <-stopped:
		case <-sigChan:
			logger.Info("再次收到退出信号，强制停机")
		case <-time.After(10 * time.Minute):
			logger.Error("等待停机超时，强制退出")
		}
		bot.Stop()
	}()

	return bot.Run(ctx)
}

func buildFeed(ctx context.Context, cfg *config.Config) (feed.Feed, *feed.Toggle, func(), error) {
	toggle := feed.NewToggle(true)

	switch cfg.Feed.Mode {
	case "binance":
		client := binance.NewClient(cfg.Feed.Binance.APIKey, cfg.Feed.Binance.SecretKey, cfg.Feed.Binance.BaseURL)
		bf := feed.NewBinanceFeed(client, cfg.Feed.Binance.Symbol, cfg.Feed.Binance.Interval)
		refresh := time.Duration(cfg.Feed.Binance.RefreshSeconds) * time.Second
		if refresh <= 0 {
			refresh = 15 * time.Second
		}
		if err := bf.Start(ctx, refresh); err != nil {
			return nil, nil, nil, err
		}
		return bf, toggle, bf.Stop, nil

	default:
		sim := feed.NewSimulated(cfg.Robot.Symbol, time.Now().UnixNano())
		return sim, toggle, func() {}, nil
	}
}

func buildBroker(ctx context.Context, cfg *config.Config) (broker.Broker, error) {
	switch cfg.Broker.Mode {
	case "deriv":
		return deriv.Dial(ctx, cfg.Broker.Deriv.Endpoint, cfg.Broker.Deriv.AppID, cfg.Broker.Deriv.APIToken)
	default:
		return broker.NewPaperBroker(decimal.NewFromFloat(cfg.Broker.Paper.InitialBalance)), nil
	}
}
