package api

import (
	"context"

	"pagepilot/internal/config"
	"pagepilot/internal/logger"
	"pagepilot/internal/service"
	"pagepilot/internal/storage"
	"pagepilot/pkg/model"
)

// Service 服务接口
type Service interface {
	// StartSession 连接页面并启动会话
	StartSession(ctx context.Context, cfg model.SessionConfig) (model.SessionID, error)

	// StopSession 停止会话
	StopSession(id model.SessionID) error

	// ListTargets 列出目标
	ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error)

	// SendMessage 发送用户消息
	SendMessage(ctx context.Context, id model.SessionID, text string) error

	// AnalyzeScreenshot 截图分析
	AnalyzeScreenshot(ctx context.Context, id model.SessionID) error

	// ToggleSpeak 切换控件朗读
	ToggleSpeak(ctx context.Context, id model.SessionID, control model.ControlID, text string) error

	// StopSpeaking 停止朗读
	StopSpeaking()

	// ClearConversation 清空对话
	ClearConversation(id model.SessionID) error

	// GetSettings 获取设置
	GetSettings() model.Settings

	// SaveSettings 保存设置
	SaveSettings(ctx context.Context, st model.Settings) error

	// SubscribeEvents 订阅事件
	SubscribeEvents(id model.SessionID) (<-chan model.Event, error)

	// Close 释放全部资源
	Close()
}

// NewService 创建并返回服务接口实现；store 可为 nil，此时设置仅保存在内存中
func NewService(cfg *config.Config, store *storage.SettingsStore, l logger.Logger) Service {
	opts := service.Options{Config: cfg, Logger: l}
	if store != nil {
		opts.Store = store
	}
	return service.New(opts)
}
