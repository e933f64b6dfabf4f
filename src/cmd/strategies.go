package cmd

import (
	"fmt"
	"sort"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"

	"derivbot/src/rules"
)

// RegisterStrategiesCmd 注册策略列表命令
func RegisterStrategiesCmd() {
	cmd.RegisterCmd("strategies", "list built-in trading strategies", func(args *arg.Arg) {
		args.Parse()

		names := rules.Names()
		sort.Strings(names)

		fmt.Printf("📋 内置策略 (%d):\n\n", len(names))
		for _, name := range names {
			fmt.Printf("  %s\n", name)
			switch name {
			case "Scalping Pro":
				fmt.Println("    买入: RSI < 30 且 MACD > 0 且 Volume > 150000")
				fmt.Println("    卖出: RSI > 70 且 MACD < 0 且 Volume > 150000")
			case "Trend Follower":
				fmt.Println("    买入: EMA 20 > SMA 50 且 ADX > 25")
				fmt.Println("    卖出: EMA 20 < SMA 50 且 ADX > 25")
			case "Mean Reversion":
				fmt.Println("    买入: RSI < 25 且 Bollinger Bands > 1.2500")
				fmt.Println("    卖出: RSI > 75 且 Bollinger Bands < 1.2600")
			case "EdgeAI Engine":
				fmt.Println("    买入: [RSI < 40, MACD > 0, ADX > 20, Volume > 120000] 至少满足 3 项")
				fmt.Println("    卖出: [RSI > 60, MACD < 0, ADX > 20, Volume > 120000] 至少满足 3 项")
			}
			fmt.Println()
		}
	})
}

// RegisterAllCommands 注册全部命令
func RegisterAllCommands() {
	RegisterRobotCmd()
	RegisterAnalyzeCmd()
	RegisterStrategiesCmd()
}
