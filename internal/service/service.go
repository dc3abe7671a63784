package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pagepilot/internal/cdp"
	"pagepilot/internal/config"
	"pagepilot/internal/handler"
	"pagepilot/internal/logger"
	"pagepilot/internal/openai"
	"pagepilot/internal/playback"
	"pagepilot/internal/session"
	"pagepilot/pkg/model"

	"github.com/google/uuid"
)

// EventBuffer 每个会话事件通道的容量
const EventBuffer = 256

var ErrSessionNotFound = errors.New("session not found")

// Inspector 页面检查器
type Inspector interface {
	session.ContextSource
	handler.Screenshotter
	Detach() error
}

// SettingsStore 设置持久化
type SettingsStore interface {
	Load(ctx context.Context) (model.Settings, error)
	Save(ctx context.Context, st model.Settings) error
}

// AttachFunc 连接页面并安装控制台拦截
type AttachFunc func(ctx context.Context, cfg model.SessionConfig, l logger.Logger) (Inspector, error)

// TargetLister 列出 DevTools 目标
type TargetLister func(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error)

// Options 服务依赖；未提供的依赖按配置构建默认实现
type Options struct {
	Config      *config.Config
	Logger      logger.Logger
	Store       SettingsStore
	Chat        handler.ChatClient
	Synthesizer playback.Synthesizer
	Player      playback.Player
	Attach      AttachFunc
	ListTargets TargetLister
}

type runtime struct {
	sess    *session.Session
	handler *handler.Handler
	events  chan model.Event
}

// Service 服务实现：管理页面会话、轮次与全局唯一的朗读控制器
type Service struct {
	cfg     *config.Config
	log     logger.Logger
	store   SettingsStore
	chat    handler.ChatClient
	attach  AttachFunc
	targets TargetLister
	mgr     *session.Manager
	speaker *playback.Controller

	mu       sync.RWMutex
	settings model.Settings
	runtimes map[model.SessionID]*runtime
	controls map[model.ControlID]model.SessionID
}

// New 创建服务实例
func New(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}
	s := &Service{
		cfg:      cfg,
		log:      l,
		store:    opts.Store,
		chat:     opts.Chat,
		attach:   opts.Attach,
		targets:  opts.ListTargets,
		mgr:      session.NewManager(l),
		settings: model.DefaultSettings(),
		runtimes: make(map[model.SessionID]*runtime),
		controls: make(map[model.ControlID]model.SessionID),
	}

	var client *openai.Client
	if s.chat == nil || opts.Synthesizer == nil {
		client = openai.New(openai.Config{BaseURL: cfg.Chat.BaseURL, Logger: l})
	}
	if s.chat == nil {
		s.chat = client
	}
	synth := opts.Synthesizer
	if synth == nil {
		synth = &openai.Synthesizer{Client: client, Model: cfg.Speech.Model, Speed: cfg.Speech.Speed, Settings: s.GetSettings}
	}
	player := opts.Player
	if player == nil {
		player = &playback.CommandPlayer{Command: cfg.Speech.Player}
	}
	if s.attach == nil {
		s.attach = attachCDP
	}
	if s.targets == nil {
		s.targets = cdp.ListTargets
	}
	s.speaker = playback.New(playback.Config{
		Synthesizer: synth,
		Player:      player,
		Notifier:    &notifier{s: s},
		Logger:      l.With("component", "playback"),
	})
	return s
}

// attachCDP 通过 DevTools 协议连接页面
func attachCDP(ctx context.Context, cfg model.SessionConfig, l logger.Logger) (Inspector, error) {
	m := cdp.New(cfg.DevToolsURL, l)
	if err := m.AttachTarget(ctx, cfg.Target); err != nil {
		return nil, fmt.Errorf("连接页面失败: %w", err)
	}
	if _, err := m.InstallCapture(); err != nil {
		_ = m.Detach()
		return nil, fmt.Errorf("安装控制台拦截失败: %w", err)
	}
	return m, nil
}

// StartSession 连接页面并启动上下文轮询；设置在此时从存储读取一次
func (s *Service) StartSession(ctx context.Context, cfg model.SessionConfig) (model.SessionID, error) {
	if cfg.DevToolsURL == "" {
		cfg.DevToolsURL = s.cfg.DevTools.URL
	}
	if cfg.Target == "" {
		cfg.Target = model.TargetID(s.cfg.DevTools.Target)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Duration(s.cfg.DevTools.PollIntervalMS) * time.Millisecond
	}

	if s.store != nil {
		st, err := s.store.Load(ctx)
		if err != nil {
			s.log.Err(err, "读取设置失败，使用默认设置")
		} else {
			s.mu.Lock()
			s.settings = st
			s.mu.Unlock()
		}
	}

	id := model.SessionID(uuid.NewString())
	l := s.log.With("sessionID", string(id))
	insp, err := s.attach(ctx, cfg, l)
	if err != nil {
		return "", err
	}

	sess := s.mgr.Create(id, cfg)
	sess.SetSettings(s.GetSettings())

	pollCtx, cancel := context.WithCancel(context.Background())
	poller := session.NewPoller(insp, cfg.PollInterval, l)
	sess.SetPoller(poller)
	go poller.Run(pollCtx)

	events := make(chan model.Event, EventBuffer)
	h := handler.New(handler.Config{
		SessionID:       id,
		Session:         sess,
		Conversation:    sess.Conversation,
		Chat:            s.chat,
		Narrator:        &narrator{s: s, session: id},
		Screenshots:     insp,
		Events:          events,
		Model:           s.cfg.Chat.Model,
		VisionModel:     s.cfg.Chat.VisionModel,
		VisionMaxTokens: s.cfg.Chat.VisionMaxTokens,
		Logger:          l,
	})

	sess.OnClose(func() {
		if err := insp.Detach(); err != nil {
			l.Err(err, "断开页面失败")
		}
	})
	sess.OnClose(cancel)

	s.mu.Lock()
	s.runtimes[id] = &runtime{sess: sess, handler: h, events: events}
	s.mu.Unlock()
	l.Info("会话已启动", "devtools", cfg.DevToolsURL, "target", string(cfg.Target))
	return id, nil
}

// StopSession 停止会话并释放页面连接
func (s *Service) StopSession(id model.SessionID) error {
	if _, err := s.get(id); err != nil {
		return err
	}
	// 控制器通知在其锁内获取 s.mu，这里不能持有 s.mu 调用控制器
	if cur, speaking := s.speaker.Current(); speaking {
		if owner, _, ok := s.owner(cur.Control); ok && owner == id {
			s.speaker.Stop()
		}
	}

	s.mu.Lock()
	_, ok := s.runtimes[id]
	delete(s.runtimes, id)
	for c, owner := range s.controls {
		if owner == id {
			delete(s.controls, c)
		}
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.mgr.Delete(id)
	return nil
}

// ListTargets 列出可连接的页面；devtoolsURL 为空时使用配置
func (s *Service) ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error) {
	if devtoolsURL == "" {
		devtoolsURL = s.cfg.DevTools.URL
	}
	return s.targets(ctx, devtoolsURL)
}

// SendMessage 发送用户消息
func (s *Service) SendMessage(ctx context.Context, id model.SessionID, text string) error {
	rt, err := s.get(id)
	if err != nil {
		return err
	}
	return rt.handler.HandleMessage(ctx, text)
}

// AnalyzeScreenshot 截图并请求分析
func (s *Service) AnalyzeScreenshot(ctx context.Context, id model.SessionID) error {
	rt, err := s.get(id)
	if err != nil {
		return err
	}
	return rt.handler.HandleScreenshot(ctx)
}

// ToggleSpeak 切换指定控件的朗读
func (s *Service) ToggleSpeak(ctx context.Context, id model.SessionID, control model.ControlID, text string) error {
	if _, err := s.get(id); err != nil {
		return err
	}
	s.bind(control, id)
	return s.speaker.RequestToggle(ctx, text, control)
}

// StopSpeaking 停止当前朗读
func (s *Service) StopSpeaking() {
	s.speaker.Stop()
}

// ClearConversation 清空会话历史
func (s *Service) ClearConversation(id model.SessionID) error {
	rt, err := s.get(id)
	if err != nil {
		return err
	}
	rt.handler.Abandon(context.Background())
	rt.sess.Reset()
	s.log.Info("会话历史已清空", "sessionID", string(id))
	emit(rt.events, model.Event{Type: model.EventCleared, Session: id})
	return nil
}

// GetSettings 当前设置
func (s *Service) GetSettings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SaveSettings 持久化设置并应用到所有会话
func (s *Service) SaveSettings(ctx context.Context, st model.Settings) error {
	if st.Voice == "" {
		st.Voice = model.DefaultVoice
	}
	if s.store != nil {
		if err := s.store.Save(ctx, st); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.settings = st
	rts := make([]*runtime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		rts = append(rts, rt)
	}
	s.mu.Unlock()

	for _, rt := range rts {
		rt.sess.SetSettings(st)
		emit(rt.events, model.Event{Type: model.EventSettingsSaved, Session: rt.sess.ID, Text: "Settings saved!"})
	}
	return nil
}

// SubscribeEvents 订阅会话事件；通道随服务存在，不会被关闭
func (s *Service) SubscribeEvents(id model.SessionID) (<-chan model.Event, error) {
	rt, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return rt.events, nil
}

// Close 停止朗读并关闭全部会话
func (s *Service) Close() {
	s.speaker.Stop()
	s.mu.Lock()
	s.runtimes = make(map[model.SessionID]*runtime)
	s.controls = make(map[model.ControlID]model.SessionID)
	s.mu.Unlock()
	s.mgr.CloseAll()
}

func (s *Service) get(id model.SessionID) (*runtime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.runtimes[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rt, nil
}

func (s *Service) bind(control model.ControlID, id model.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls[control] = id
}

// owner 控件所属会话的事件通道
func (s *Service) owner(control model.ControlID) (model.SessionID, chan model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.controls[control]
	if !ok {
		return "", nil, false
	}
	rt, ok := s.runtimes[id]
	if !ok {
		return "", nil, false
	}
	return id, rt.events, true
}

// emit 非阻塞推送事件
func emit(ch chan model.Event, ev model.Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	select {
	case ch <- ev:
	default:
	}
}
