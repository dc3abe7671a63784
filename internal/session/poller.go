package session

import (
	"context"
	"sync"
	"time"

	"pagepilot/internal/conversation"
	"pagepilot/internal/logger"
)

// DefaultPollInterval 页面上下文轮询间隔
const DefaultPollInterval = 2 * time.Second

// ContextSource 页面上下文来源
type ContextSource interface {
	GetDOMDigest(ctx context.Context) (string, error)
	GetRecentLogs(ctx context.Context) ([]string, error)
}

// Poller 周期性拉取页面摘要与日志；单项失败时保留上一次的值
type Poller struct {
	src      ContextSource
	interval time.Duration
	log      logger.Logger

	mu     sync.RWMutex
	latest conversation.Context
	polls  int
}

// NewPoller 创建轮询器
func NewPoller(src ContextSource, interval time.Duration, l logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Poller{src: src, interval: interval, log: l}
}

// PollOnce 立即拉取一次
func (p *Poller) PollOnce(ctx context.Context) {
	dom, domErr := p.src.GetDOMDigest(ctx)
	if domErr != nil {
		p.log.Debug("获取页面摘要失败", "error", domErr.Error())
	}
	logs, logErr := p.src.GetRecentLogs(ctx)
	if logErr != nil {
		p.log.Debug("获取页面日志失败", "error", logErr.Error())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if domErr == nil {
		p.latest.DOM = dom
	}
	if logErr == nil {
		p.latest.Logs = logs
	}
	p.polls++
}

// Run 立即拉取一次，之后按间隔拉取，直到 ctx 结束
func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// Latest 最近一次完成的轮询结果
func (p *Poller) Latest() conversation.Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	logs := make([]string, len(p.latest.Logs))
	copy(logs, p.latest.Logs)
	return conversation.Context{DOM: p.latest.DOM, Logs: logs}
}

// Polls 已完成的轮询次数
func (p *Poller) Polls() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.polls
}
