package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pagepilot/internal/config"
	"pagepilot/internal/logger"
	"pagepilot/internal/storage"
	api "pagepilot/pkg/api"
	"pagepilot/pkg/model"

	tea "github.com/charmbracelet/bubbletea"
)

// main 终端面板入口
func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径")
	devtools := flag.String("devtools", "", "DevTools 地址，覆盖配置")
	target := flag.String("target", "", "目标页面 ID，为空时选择第一个页面")
	flag.Parse()

	if err := run(*configPath, *devtools, *target); err != nil {
		fmt.Fprintln(os.Stderr, "pagepilot:", err)
		os.Exit(1)
	}
}

func run(configPath, devtools, target string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if devtools != "" {
		cfg.DevTools.URL = devtools
	}
	if target != "" {
		cfg.DevTools.Target = target
	}

	l := logger.New(logger.Options{Level: cfg.Log.Level, Writers: panelWriters(cfg.Log.Writer), File: cfg.Log.File})
	l.Info("启动 pagepilot", "version", cfg.Version, "devtools", cfg.DevTools.URL)

	store, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l.With("component", "storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	svc := api.NewService(cfg, store, l)
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	id, err := svc.StartSession(ctx, model.SessionConfig{
		DevToolsURL:  cfg.DevTools.URL,
		Target:       model.TargetID(cfg.DevTools.Target),
		PollInterval: time.Duration(cfg.DevTools.PollIntervalMS) * time.Millisecond,
	})
	cancel()
	if err != nil {
		return err
	}
	events, err := svc.SubscribeEvents(id)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(newPanel(svc, id, events), tea.WithAltScreen()).Run()
	return err
}

// panelWriters 终端被面板占用，丢弃 console 输出
func panelWriters(writers []string) []string {
	out := make([]string, 0, len(writers))
	for _, w := range writers {
		if w != "console" {
			out = append(out, w)
		}
	}
	return out
}
