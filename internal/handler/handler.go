package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"pagepilot/internal/conversation"
	"pagepilot/internal/ctxkeys"
	"pagepilot/internal/logger"
	"pagepilot/internal/openai"
	"pagepilot/internal/stream"
	"pagepilot/pkg/model"

	"github.com/google/uuid"
)

// ScreenshotNotice 截图轮次开始时展示给用户的提示
const ScreenshotNotice = "📸 Screenshot captured - analyzing..."

// ChatClient 流式对话接口
type ChatClient interface {
	StreamChat(ctx context.Context, apiKey string, req openai.ChatRequest) (io.ReadCloser, error)
}

// Narrator 朗读请求的接收方
type Narrator interface {
	RequestPlay(ctx context.Context, text string, control model.ControlID) error
}

// Screenshotter 截取页面可视区域
type Screenshotter interface {
	CaptureScreenshot(ctx context.Context) ([]byte, error)
}

// Session 轮次所需的会话状态
type Session interface {
	Settings() model.Settings
	Context() conversation.Context
}

// Handler 轮次编排器：组装上下文、发送请求、驱动流式解码并提交结果
type Handler struct {
	session     model.SessionID
	state       Session
	conv        *conversation.Conversation
	chat        ChatClient
	narrator    Narrator
	screenshots Screenshotter
	events      chan<- model.Event

	model           string
	visionModel     string
	visionMaxTokens int
	log             logger.Logger

	mu   sync.Mutex
	gen  uint64
	turn model.TurnID
	busy bool
}

// Config 配置选项
type Config struct {
	SessionID       model.SessionID
	Session         Session
	Conversation    *conversation.Conversation
	Chat            ChatClient
	Narrator        Narrator
	Screenshots     Screenshotter
	Events          chan<- model.Event
	Model           string
	VisionModel     string
	VisionMaxTokens int
	Logger          logger.Logger
}

// New 创建轮次编排器
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Handler{
		session:         cfg.SessionID,
		state:           cfg.Session,
		conv:            cfg.Conversation,
		chat:            cfg.Chat,
		narrator:        cfg.Narrator,
		screenshots:     cfg.Screenshots,
		events:          cfg.Events,
		model:           cfg.Model,
		visionModel:     cfg.VisionModel,
		visionMaxTokens: cfg.VisionMaxTokens,
		log:             l,
	}
}

// turn 一次进行中的轮次
type turn struct {
	id  model.TurnID
	gen uint64
	log logger.Logger
}

// HandleMessage 处理一条用户消息
func (h *Handler) HandleMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	settings := h.state.Settings()
	if settings.APIKey == "" {
		h.notice(ctx, "", model.ErrMissingAPIKey)
		return model.ErrMissingAPIKey
	}

	t := h.begin(ctx)
	ctx = ctxkeys.WithTraceID(ctx, string(t.id))
	h.emit(ctx, model.Event{Type: model.EventUserMessage, Turn: t.id, Text: text}, true)

	h.conv.AppendUser(text, h.state.Context())
	req := openai.ChatRequest{Model: h.model, Messages: h.conv.BuildRequest()}
	t.log.Debug("发送对话请求", "messages", len(req.Messages))

	full, err := h.run(ctx, t, settings.APIKey, req)
	if err != nil {
		return err
	}
	if !h.commit(t, func() { h.conv.AppendAssistant(full) }) {
		return nil
	}
	h.finish(ctx, t, full, settings)
	return nil
}

// HandleScreenshot 截取页面并发起截图分析轮次
func (h *Handler) HandleScreenshot(ctx context.Context) error {
	settings := h.state.Settings()
	if settings.APIKey == "" {
		h.notice(ctx, "", model.ErrMissingAPIKey)
		return model.ErrMissingAPIKey
	}
	if h.screenshots == nil {
		err := errors.New("screenshot capture unavailable")
		h.notice(ctx, "", err)
		return err
	}

	t := h.begin(ctx)
	ctx = ctxkeys.WithTraceID(ctx, string(t.id))

	png, err := h.screenshots.CaptureScreenshot(ctx)
	if err != nil {
		t.log.Err(err, "截图失败")
		h.end(t)
		h.notice(ctx, t.id, err)
		return err
	}
	h.emit(ctx, model.Event{Type: model.EventUserMessage, Turn: t.id, Text: ScreenshotNotice}, true)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	req := openai.ChatRequest{
		Model:     h.visionModel,
		Messages:  h.conv.BuildVisualRequest(dataURL),
		MaxTokens: h.visionMaxTokens,
	}
	t.log.Debug("发送截图分析请求", "imageBytes", len(png))

	full, err := h.run(ctx, t, settings.APIKey, req)
	if err != nil {
		return err
	}
	if !h.commit(t, func() { h.conv.CommitVisualTurn(full) }) {
		return nil
	}
	h.finish(ctx, t, full, settings)
	return nil
}

// Busy 是否有轮次正在进行
func (h *Handler) Busy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.busy
}

// begin 开始新轮次；进行中的旧轮次被放弃，其后续增量不再处理
func (h *Handler) begin(ctx context.Context) turn {
	h.mu.Lock()
	prev, wasBusy := h.turn, h.busy
	h.gen++
	t := turn{id: model.TurnID(uuid.NewString()), gen: h.gen}
	h.turn = t.id
	h.busy = true
	h.mu.Unlock()

	t.log = h.log.With("session", string(h.session), "turn", string(t.id))
	if wasBusy {
		h.abandoned(ctx, prev)
	}
	return t
}

// Abandon 放弃进行中的轮次，其结果不会提交；没有进行中的轮次时不做任何事
func (h *Handler) Abandon(ctx context.Context) {
	h.mu.Lock()
	prev, wasBusy := h.turn, h.busy
	if wasBusy {
		h.gen++
		h.busy = false
	}
	h.mu.Unlock()

	if wasBusy {
		h.abandoned(ctx, prev)
	}
}

func (h *Handler) abandoned(ctx context.Context, id model.TurnID) {
	h.log.Info("放弃进行中的轮次", "session", string(h.session), "turn", string(id))
	h.emit(ctx, model.Event{Type: model.EventTurnAbandoned, Turn: id}, true)
}

func (h *Handler) current(t turn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen == t.gen
}

// end 结束轮次；已被放弃的轮次不影响当前状态
func (h *Handler) end(t turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen == t.gen {
		h.busy = false
	}
}

// commit 仍为当前轮次时提交结果并结束轮次
func (h *Handler) commit(t turn, fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != t.gen {
		t.log.Debug("轮次已被放弃，丢弃结果")
		return false
	}
	fn()
	h.busy = false
	return true
}

// run 发送请求并累积增量；返回 nil 错误且结果为空表示轮次被放弃
func (h *Handler) run(ctx context.Context, t turn, apiKey string, req openai.ChatRequest) (string, error) {
	body, err := h.chat.StreamChat(ctx, apiKey, req)
	if err != nil {
		t.log.Err(err, "对话请求失败")
		if !h.current(t) {
			return "", nil
		}
		h.end(t)
		h.notice(ctx, t.id, err)
		return "", err
	}
	defer body.Close()

	var acc strings.Builder
	for delta, err := range stream.Deltas(body) {
		if !h.current(t) {
			return "", nil
		}
		if err != nil {
			t.log.Err(err, "读取流式响应失败", "received", acc.Len())
			h.end(t)
			h.notice(ctx, t.id, err)
			return "", err
		}
		acc.WriteString(delta.Text)
		if !h.emitDelta(t, acc.String()) {
			return "", nil
		}
	}
	return acc.String(), nil
}

// emitDelta 轮次仍有效时推送增量；与 gen 的变更互斥，turn_abandoned 之后不会再有该轮次的增量
func (h *Handler) emitDelta(t turn, text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != t.gen {
		return false
	}
	h.emit(context.Background(), model.Event{Type: model.EventAssistantDelta, Turn: t.id, Text: text}, false)
	return true
}

// finish 推送完成事件并按设置自动朗读
func (h *Handler) finish(ctx context.Context, t turn, full string, settings model.Settings) {
	t.log.Info("轮次完成", "chars", len(full))
	h.emit(ctx, model.Event{Type: model.EventAssistantDone, Turn: t.id, Control: model.ControlID(t.id), Text: full}, true)

	if !settings.AutoSpeak || strings.TrimSpace(full) == "" || h.narrator == nil {
		return
	}
	go func() {
		if err := h.narrator.RequestPlay(context.WithoutCancel(ctx), full, model.ControlID(t.id)); err != nil {
			t.log.Err(err, "自动朗读失败")
		}
	}()
}

func (h *Handler) notice(ctx context.Context, id model.TurnID, err error) {
	text := err.Error()
	if !errors.Is(err, model.ErrMissingAPIKey) {
		text = "Error: " + text
	}
	h.emit(ctx, model.Event{Type: model.EventNotice, Turn: id, Text: text, Error: err}, true)
}

// emit 推送事件；增量事件在通道满时丢弃，其余事件阻塞直到送达或 ctx 结束
func (h *Handler) emit(ctx context.Context, ev model.Event, block bool) {
	if h.events == nil {
		return
	}
	ev.Session = h.session
	ev.Timestamp = time.Now().UnixMilli()
	if !block {
		select {
		case h.events <- ev:
		default:
		}
		return
	}
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}
