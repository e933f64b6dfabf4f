package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-config/configs"
	"github.com/xpwu/go-log/log"

	botcmd "derivbot/src/cmd"
)

func main() {
	// 设置 JSON 配置格式
	configs.SetConfigurator(&configs.JsonConfig{})

	// 智能查找配置文件
	setupConfigPath()

	// 读取配置文件
	err := configs.ReadWithErr()
	if err != nil {
		// 如果读取失败，生成默认配置文件
		printErr := configs.Print()
		if printErr != nil {
			panic("生成默认配置文件失败: " + printErr.Error())
		}
		panic("请修改 config.json 配置文件后重新运行")
	}

	// 创建带上下文的日志
	ctx := context.Background()
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("DerivBot")
	logger.Info("交易机器人启动")

	// 注册全部命令
	botcmd.RegisterAllCommands()

	// 运行命令行程序
	cmd.Run()
}

// setupConfigPath 智能设置配置文件路径
// 优先级: 1. bin/config.json 2. config.json 3. 生成默认配置
func setupConfigPath() {
	// 获取可执行文件所在目录
	execPath, err := os.Executable()
	if err != nil {
		return // 如果获取失败，使用默认行为
	}

	execDir := filepath.Dir(execPath)
	binConfigPath := filepath.Join(execDir, "config.json")

	// 检查 bin/config.json 是否存在
	if _, err := os.Stat(binConfigPath); err == nil {
		// 如果存在，切换工作目录到 bin 目录
		os.Chdir(execDir)
		return
	}
}
