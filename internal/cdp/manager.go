package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"pagepilot/internal/buffers"
	"pagepilot/internal/logger"
	"pagepilot/internal/pagectx"
	"pagepilot/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
)

var (
	ErrNotAttached      = errors.New("not attached")
	ErrCaptureInstalled = errors.New("console capture already installed")
)

// Manager 页面检查器：连接 DevTools 目标，提供页面摘要、控制台日志与截图
type Manager struct {
	devtoolsURL string
	log         logger.Logger

	mu       sync.Mutex
	conn     *rpcc.Conn
	client   *cdp.Client
	ctx      context.Context
	cancel   context.CancelFunc
	target   model.TargetInfo
	logs     *buffers.LogBuffer
	capture  *capture
	attached bool
}

// New 创建页面检查器
func New(devtoolsURL string, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{devtoolsURL: devtoolsURL, log: l, logs: buffers.NewLogBuffer()}
}

// ListTargets 列出 DevTools 上的页面目标
func ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error) {
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		out = append(out, model.TargetInfo{
			ID:    model.TargetID(t.ID),
			Type:  string(t.Type),
			URL:   t.URL,
			Title: t.Title,
		})
	}
	return out, nil
}

// AttachTarget 连接指定目标；target 为空时选择第一个 page 类型目标
func (m *Manager) AttachTarget(ctx context.Context, target model.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attached {
		return fmt.Errorf("already attached to %s", m.target.ID)
	}

	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return err
	}
	var sel *devtool.Target
	for _, t := range targets {
		if target != "" && string(t.ID) == string(target) {
			sel = t
			break
		}
		if target == "" && t.Type == devtool.Page {
			sel = t
			break
		}
	}
	if sel == nil {
		return fmt.Errorf("no target")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return err
	}
	client := cdp.NewClient(conn)
	if err := client.Runtime.Enable(ctx); err != nil {
		cancel()
		conn.Close()
		return err
	}
	m.conn = conn
	m.client = client
	m.ctx = runCtx
	m.cancel = cancel
	m.target = model.TargetInfo{ID: model.TargetID(sel.ID), Type: string(sel.Type), URL: sel.URL, Title: sel.Title}
	m.attached = true
	m.log.Info("已连接目标页面", "target", sel.ID, "url", sel.URL)
	return nil
}

// Target 当前连接的目标
func (m *Manager) Target() model.TargetInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Logs 控制台日志缓冲区
func (m *Manager) Logs() *buffers.LogBuffer { return m.logs }

// InstallCapture 安装控制台拦截器，只允许安装一次；返回的函数用于拆除
func (m *Manager) InstallCapture() (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return nil, ErrNotAttached
	}
	if m.capture != nil {
		return nil, ErrCaptureInstalled
	}

	consoleStream, err := m.client.Runtime.ConsoleAPICalled(m.ctx)
	if err != nil {
		return nil, err
	}
	exceptionStream, err := m.client.Runtime.ExceptionThrown(m.ctx)
	if err != nil {
		consoleStream.Close()
		return nil, err
	}

	c := newCapture(m.logs, m.log)
	c.start(consoleStream, exceptionStream)
	m.capture = c
	m.log.Info("控制台拦截已安装", "target", string(m.target.ID))
	return c.stop, nil
}

// GetDOMDigest 在页面中采集原始状态并生成摘要
func (m *Manager) GetDOMDigest(ctx context.Context) (string, error) {
	client, err := m.currentClient()
	if err != nil {
		return "", err
	}
	reply, err := client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(domScript).SetReturnByValue(true))
	if err != nil {
		return "", err
	}
	if reply.ExceptionDetails != nil {
		return "", fmt.Errorf("evaluate: %s", reply.ExceptionDetails.Text)
	}
	return ParseDigest(reply.Result.Value)
}

// ParseDigest 解析页面脚本返回值并生成摘要
func ParseDigest(raw json.RawMessage) (string, error) {
	var p pagectx.Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("解析页面数据失败: %w", err)
	}
	return pagectx.Build(p), nil
}

// GetRecentLogs 返回缓冲区中的日志行
func (m *Manager) GetRecentLogs(ctx context.Context) ([]string, error) {
	return m.logs.Lines(), nil
}

// CaptureScreenshot 截取当前可视区域的 PNG
func (m *Manager) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	client, err := m.currentClient()
	if err != nil {
		return nil, err
	}
	reply, err := client.Page.CaptureScreenshot(ctx, page.NewCaptureScreenshotArgs().SetFormat("png"))
	if err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// Detach 拆除拦截器并断开连接
func (m *Manager) Detach() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.capture != nil {
		m.capture.stop()
		m.capture = nil
	}
	m.attached = false
	m.client = nil
	m.log.Info("已断开目标页面", "target", string(m.target.ID))
	return m.conn.Close()
}

func (m *Manager) currentClient() (*cdp.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return nil, ErrNotAttached
	}
	return m.client, nil
}
