package main

import (
	"context"
	"fmt"
	"strings"

	api "pagepilot/pkg/api"
	"pagepilot/pkg/model"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
)

// chatMessage 面板中展示的一条消息；用户消息只显示原文
type chatMessage struct {
	role      string
	text      string
	turn      model.TurnID
	control   model.ControlID
	streaming bool
	abandoned bool
}

type eventMsg model.Event

type actionDoneMsg struct {
	status string
	err    error
}

type styles struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	system    lipgloss.Style
	control   lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
}

func newStyles() styles {
	accent := lipgloss.Color("#01cdfe")
	muted := lipgloss.Color("#9ca3d8")
	return styles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(accent),
		system:    lipgloss.NewStyle().Italic(true).Foreground(muted),
		control:   lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")),
		status:    lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		errStatus: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true).Padding(0, 1),
	}
}

// panel 终端聊天面板
type panel struct {
	svc     api.Service
	session model.SessionID
	events  <-chan model.Event

	messages  []chatMessage
	playing   map[model.ControlID]bool
	abandoned map[model.TurnID]bool
	draft    model.Settings

	input    textinput.Model
	timeline viewport.Model
	styles   styles
	status   string
	failed   bool
	width    int
	height   int
}

func newPanel(svc api.Service, id model.SessionID, events <-chan model.Event) *panel {
	input := textinput.New()
	input.Placeholder = "Ask about this page… (/help)"
	input.Prompt = "> "
	input.Focus()

	return &panel{
		svc:       svc,
		session:   id,
		events:    events,
		playing:   make(map[model.ControlID]bool),
		abandoned: make(map[model.TurnID]bool),
		draft:     svc.GetSettings(),
		input:     input,
		timeline:  viewport.New(0, 0),
		styles:    newStyles(),
		status:    "ready",
	}
}

func (p *panel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, p.waitEvent())
}

// waitEvent 等待下一个会话事件
func (p *panel) waitEvent() tea.Cmd {
	ch := p.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (p *panel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case eventMsg:
		p.applyEvent(model.Event(msg))
		p.render()
		cmds = append(cmds, p.waitEvent())
	case actionDoneMsg:
		if msg.err != nil {
			p.setError(msg.err)
		} else if msg.status != "" {
			p.setStatus(msg.status)
		}
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		p.timeline.Width = msg.Width
		p.timeline.Height = max(msg.Height-4, 1)
		p.input.Width = max(msg.Width-4, 10)
		p.render()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return p, tea.Quit
		case "enter":
			raw := p.input.Value()
			p.input.Reset()
			if cmd := p.submit(raw); cmd != nil {
				cmds = append(cmds, cmd)
			}
			p.render()
			return p, tea.Batch(cmds...)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			p.timeline, cmd = p.timeline.Update(msg)
			return p, cmd
		}
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return p, tea.Batch(cmds...)
}

// submit 处理输入行：斜杠命令或普通消息
func (p *panel) submit(raw string) tea.Cmd {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		return p.command(text)
	}
	svc, id := p.svc, p.session
	p.setStatus("thinking…")
	return func() tea.Msg {
		return actionDoneMsg{status: "ready", err: ignoreReported(svc.SendMessage(context.Background(), id, text))}
	}
}

// applyEvent 将会话事件折叠进面板状态
func (p *panel) applyEvent(ev model.Event) {
	switch ev.Type {
	case model.EventUserMessage:
		p.messages = append(p.messages, chatMessage{role: roleUser, text: ev.Text, turn: ev.Turn})
	case model.EventAssistantDelta:
		// 已放弃的轮次不再重建气泡，清空后也一样
		if p.abandoned[ev.Turn] {
			return
		}
		m := p.assistantFor(ev.Turn)
		m.text = ev.Text
		m.streaming = true
	case model.EventAssistantDone:
		if p.abandoned[ev.Turn] {
			return
		}
		m := p.assistantFor(ev.Turn)
		m.text = ev.Text
		m.control = ev.Control
		m.streaming = false
	case model.EventTurnAbandoned:
		p.abandoned[ev.Turn] = true
		for i := range p.messages {
			if p.messages[i].turn == ev.Turn && p.messages[i].role == roleAssistant {
				p.messages[i].streaming = false
				p.messages[i].abandoned = true
			}
		}
	case model.EventNotice:
		p.messages = append(p.messages, chatMessage{role: roleSystem, text: ev.Text})
	case model.EventPlayback:
		if ev.Playing {
			p.playing[ev.Control] = true
		} else {
			delete(p.playing, ev.Control)
		}
	case model.EventSettingsSaved:
		p.messages = append(p.messages, chatMessage{role: roleSystem, text: ev.Text})
		p.setStatus(ev.Text)
	case model.EventCleared:
		p.messages = nil
		p.setStatus("conversation cleared")
	}
}

// assistantFor 返回轮次对应的助手消息，不存在时创建
func (p *panel) assistantFor(turn model.TurnID) *chatMessage {
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].turn == turn && p.messages[i].role == roleAssistant {
			return &p.messages[i]
		}
	}
	p.messages = append(p.messages, chatMessage{role: roleAssistant, turn: turn})
	return &p.messages[len(p.messages)-1]
}

// replies 已完成的助手消息
func (p *panel) replies() []chatMessage {
	var out []chatMessage
	for _, m := range p.messages {
		if m.role == roleAssistant && !m.streaming && !m.abandoned && m.control != "" {
			out = append(out, m)
		}
	}
	return out
}

func (p *panel) setStatus(s string) {
	p.status = s
	p.failed = false
}

func (p *panel) setError(err error) {
	p.status = err.Error()
	p.failed = true
}

func (p *panel) render() {
	p.timeline.SetContent(p.renderTimeline())
	p.timeline.GotoBottom()
}

func (p *panel) renderTimeline() string {
	var b strings.Builder
	n := 0
	for _, m := range p.messages {
		switch m.role {
		case roleUser:
			b.WriteString(p.styles.user.Render(roleLabels[roleUser]+":") + " " + m.text)
		case roleAssistant:
			b.WriteString(p.styles.assistant.Render(roleLabels[roleAssistant]+":") + " " + m.text)
			switch {
			case m.streaming:
				b.WriteString(" ▍")
			case m.abandoned:
				b.WriteString(p.styles.system.Render(" (abandoned)"))
			case m.control != "":
				n++
				b.WriteString("\n" + p.styles.control.Render(fmt.Sprintf("[%d] %s", n, controlLabel(p.playing[m.control]))))
			}
		default:
			b.WriteString(p.styles.system.Render(m.text))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (p *panel) View() string {
	header := p.styles.header.Render(appTitle + " · " + string(p.session))
	status := p.styles.status.Render(p.status)
	if p.failed {
		status = p.styles.errStatus.Render(p.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, p.timeline.View(), p.input.View(), status)
}
