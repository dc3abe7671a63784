package session

import (
	"sync"

	"pagepilot/internal/conversation"
	"pagepilot/pkg/model"
)

// Session 一个页面会话：对话历史、上下文轮询以及关闭时需要释放的资源
type Session struct {
	ID           model.SessionID
	Config       model.SessionConfig
	Conversation *conversation.Conversation

	mu       sync.Mutex
	settings model.Settings
	poller   *Poller
	cleanups []func()
	closed   bool
}

// New 创建会话
func New(id model.SessionID, cfg model.SessionConfig) *Session {
	return &Session{ID: id, Config: cfg, Conversation: conversation.New(), settings: model.DefaultSettings()}
}

// Settings 会话使用的设置副本
func (s *Session) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings 替换会话设置，后续轮次生效
func (s *Session) SetSettings(st model.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
}

// Reset 清空对话历史
func (s *Session) Reset() {
	s.Conversation.Clear()
}

// SetPoller 绑定上下文轮询器
func (s *Session) SetPoller(p *Poller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poller = p
}

// Context 最近一次轮询得到的页面上下文；未绑定轮询器时为空
func (s *Session) Context() conversation.Context {
	s.mu.Lock()
	p := s.poller
	s.mu.Unlock()
	if p == nil {
		return conversation.Context{}
	}
	return p.Latest()
}

// OnClose 注册关闭回调，按注册的逆序执行
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

// Close 释放会话资源，可重复调用
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fns := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Closed 会话是否已关闭
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
