package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"georelay/internal/app"
	"georelay/internal/shared/config"
	"georelay/internal/shared/logger"
	"georelay/internal/shared/types"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "relay.ini")
	envPath := filepath.Join(*configDir, ".env")

	// 0. .env 只补充尚未设置的环境变量
	if err := config.LoadDotEnv(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}

	// 1. 加载 .ini 行为配置
	cfg := types.NewDefaultConfig()
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 2. 加载代理源列表，相对路径以配置目录为准
	sourcesPath := resolve(*configDir, cfg.ProxyPoolConf.SourcesFile)
	sources, err := config.LoadSources(sourcesPath)
	if err != nil {
		logger.Fatal().Err(err).Msgf("Failed to load sources file '%s'", sourcesPath)
	}
	cfg.ProxyPoolConf.SeedFile = resolve(*configDir, cfg.ProxyPoolConf.SeedFile)

	// 3. 创建并运行服务器
	appServer, err := app.New(cfg, sources)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}
	if err := appServer.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}

func resolve(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
