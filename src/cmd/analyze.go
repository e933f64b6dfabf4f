package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"

	"derivbot/src/config"
	"derivbot/src/consensus"
	"derivbot/src/feed"
	"derivbot/src/learning"
	"derivbot/src/market"
	"derivbot/src/rules"
)

// RegisterAnalyzeCmd 注册单次分析命令，打印共识与规则结果后退出
func RegisterAnalyzeCmd() {
	var symbol string
	var strategyName string
	var seed int

	cmd.RegisterCmd("analyze", "run a single market analysis and print the decision", func(args *arg.Arg) {
		args.String(&symbol, "s", "trading symbol (e.g., frxEURUSD)")
		args.String(&strategyName, "strategy", "strategy name (see 'strategies' command)")
		args.Int(&seed, "seed", "random seed for the simulated feed (default: current time)")
		args.Parse()

		cfg := config.AppConfig
		if symbol != "" {
			cfg.Robot.Symbol = symbol
		}
		if strategyName != "" {
			cfg.Strategy.Name = strategyName
		}
		if seed == 0 {
			seed = int(time.Now().UnixNano())
		}

		if err := cfg.Validate(); err != nil {
			fmt.Printf("❌ 配置验证失败: %v\n", err)
			os.Exit(1)
		}

		if err := runAnalyze(cfg, int64(seed)); err != nil {
			fmt.Printf("❌ 分析失败: %v\n", err)
			os.Exit(1)
		}
	})
}

func runAnalyze(cfg *config.Config, seed int64) error {
	ctx := context.Background()

	var f feed.Feed
	cleanup := func() {}
	if cfg.Feed.Mode == "binance" {
		bf, _, stop, err := buildFeed(ctx, cfg)
		if err != nil {
			return err
		}
		f, cleanup = bf, stop
	} else {
		f = feed.NewSimulated(cfg.Robot.Symbol, seed)
	}
	defer cleanup()

	tick, err := f.CurrentTick(ctx)
	if err != nil {
		return err
	}
	readings, err := f.Readings(ctx)
	if err != nil {
		return err
	}

	learn := learning.NewEngine()
	applied := learn.Apply(readings)

	strat := &market.Strategy{
		Name:                   cfg.Strategy.Name,
		MinConfidenceThreshold: int(cfg.Strategy.MinConfidenceThreshold),
		Parameters: market.StrategyParameters{
			StopLossPercent:   cfg.Strategy.StopLossPercent,
			TakeProfitPercent: cfg.Strategy.TakeProfitPercent,
		},
	}

	result := consensus.Analyze(applied, strat)

	price, _ := tick.Price.Float64()
	ruleSignal, ruleErr := rules.EvaluateStrategy(strat.Name, market.Values(applied, price))

	fmt.Printf("📊 市场分析: symbol=%s, price=%s\n\n", tick.Symbol, tick.Price)
	fmt.Printf("指标快照 (%d):\n", len(applied))
	for _, r := range applied {
		fmt.Printf("  %-16s value=%-12.4f signal=%-8s confidence=%d%% weight=%.2f\n",
			r.Name, r.Value, r.Signal, r.Confidence, r.Weight)
	}

	fmt.Printf("\n共识结果: decision=%s, confidence=%d%%, quality=%s\n",
		result.Decision, result.Confidence, result.Quality)
	fmt.Printf("票型: buy=%d sell=%d neutral=%d (valid=%d/%d)\n",
		result.BuyCount, result.SellCount, result.NeutralCount, result.ValidCount, result.TotalCount)
	for _, reason := range result.Reasoning {
		fmt.Printf("  - %s\n", reason)
	}

	if ruleErr != nil {
		fmt.Printf("\n策略规则 [%s]: hold (%v)\n", strat.Name, ruleErr)
	} else {
		fmt.Printf("\n策略规则 [%s]: %s\n", strat.Name, ruleSignal)
	}
	return nil
}
