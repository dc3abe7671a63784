// Package playback 管理语音朗读：同一时刻最多存在一个非空闲的播放会话
package playback

import (
	"context"
	"strings"
	"sync"

	"pagepilot/internal/logger"
	"pagepilot/pkg/model"

	"github.com/google/uuid"
)

// State 控制器状态
type State int

const (
	StateIdle State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

// Synthesizer 文本转音频
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player 播放音频，返回可停止的句柄
type Player interface {
	Play(audio []byte) (Handle, error)
}

// Handle 一次播放；Done 在自然结束或被停止后关闭，Stop 释放资源且可重复调用
type Handle interface {
	Done() <-chan struct{}
	Stop() error
}

// Notifier 接收控件状态变化；在控制器锁内调用，实现方不得回调控制器
type Notifier interface {
	ControlChanged(control model.ControlID, playing bool)
	PlaybackFailed(control model.ControlID, err error)
}

// Session 播放会话
type Session struct {
	ID      string
	Control model.ControlID
}

type active struct {
	Session
	cancel context.CancelFunc
	handle Handle
}

// Config 控制器依赖
type Config struct {
	Synthesizer Synthesizer
	Player      Player
	Notifier    Notifier
	Logger      logger.Logger
}

// Controller 播放状态机，是播放会话唯一的修改者
type Controller struct {
	mu     sync.Mutex
	cur    *active
	synth  Synthesizer
	player Player
	notify Notifier
	log    logger.Logger
}

// New 创建播放控制器
func New(cfg Config) *Controller {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	n := cfg.Notifier
	if n == nil {
		n = nopNotifier{}
	}
	return &Controller{synth: cfg.Synthesizer, player: cfg.Player, notify: n, log: l}
}

// State 当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return StateIdle
	}
	return StatePlaying
}

// Current 当前播放会话
func (c *Controller) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return Session{}, false
	}
	return c.cur.Session, true
}

// RequestPlay 合成并播放 text。已有会话时先停止旧会话再开始新会话。
// 合成期间会话已处于 Playing，此时被切换或替换则丢弃合成结果。
func (c *Controller) RequestPlay(ctx context.Context, text string, control model.ControlID) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.cur != nil {
		c.log.Debug("新的朗读请求替换当前会话", "session", c.cur.ID, "control", string(c.cur.Control))
		c.releaseLocked()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	a := &active{
		Session: Session{ID: uuid.NewString(), Control: control},
		cancel:  cancel,
	}
	c.cur = a
	// Playing 在合成开始前上报，按钮随即显示停止，合成失败时再回到 Idle
	c.notify.ControlChanged(control, true)
	c.mu.Unlock()

	audio, err := c.synth.Synthesize(fetchCtx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != a {
		cancel()
		return nil
	}
	if err != nil {
		return c.failLocked(err)
	}
	h, err := c.player.Play(audio)
	if err != nil {
		return c.failLocked(err)
	}
	a.handle = h
	c.log.Info("开始朗读", "session", a.ID, "control", string(control), "bytes", len(audio))
	go c.watch(a.ID, h)
	return nil
}

// RequestToggle 同一控件再次触发时停止当前会话，否则等同 RequestPlay
func (c *Controller) RequestToggle(ctx context.Context, text string, control model.ControlID) error {
	c.mu.Lock()
	if c.cur != nil && c.cur.Control == control {
		c.log.Info("手动停止朗读", "session", c.cur.ID, "control", string(control))
		c.releaseLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.RequestPlay(ctx, text, control)
}

// OnAudioEnded 播放自然结束；过期会话的通知被忽略
func (c *Controller) OnAudioEnded(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.ID != sessionID {
		return
	}
	c.log.Debug("朗读结束", "session", sessionID)
	c.releaseLocked()
}

// Stop 停止任何正在进行的会话
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		c.releaseLocked()
	}
}

func (c *Controller) watch(sessionID string, h Handle) {
	<-h.Done()
	c.OnAudioEnded(sessionID)
}

// releaseLocked 释放当前会话并回到 Idle，调用方持有 mu 且 cur 非空
func (c *Controller) releaseLocked() {
	a := c.cur
	c.cur = nil
	a.cancel()
	if a.handle != nil {
		if err := a.handle.Stop(); err != nil {
			c.log.Err(err, "释放音频资源失败", "session", a.ID)
		}
	}
	c.notify.ControlChanged(a.Control, false)
}

func (c *Controller) failLocked(err error) error {
	control := c.cur.Control
	c.log.Err(err, "朗读失败", "session", c.cur.ID, "control", string(control))
	c.releaseLocked()
	perr := &model.PlaybackError{Err: err}
	c.notify.PlaybackFailed(control, perr)
	return perr
}

type nopNotifier struct{}

func (nopNotifier) ControlChanged(model.ControlID, bool) {}
func (nopNotifier) PlaybackFailed(model.ControlID, error) {}
