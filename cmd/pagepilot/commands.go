package main

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"pagepilot/internal/service"

	tea "github.com/charmbracelet/bubbletea"
)

// command 处理斜杠命令
func (p *panel) command(raw string) tea.Cmd {
	parts := strings.Fields(raw)
	name := strings.ToLower(parts[0])
	args := parts[1:]
	svc, id := p.svc, p.session

	switch name {
	case "/help":
		p.messages = append(p.messages, chatMessage{role: roleSystem, text: helpText})
		return nil
	case "/quit", "/exit":
		return tea.Quit
	case "/key":
		if len(args) != 1 {
			p.setStatus("usage: /key <apiKey>")
			return nil
		}
		p.draft.APIKey = args[0]
		p.setStatus("API key set, /save to persist")
		return nil
	case "/voice":
		if len(args) != 1 {
			p.setStatus("voice: " + p.draft.Voice)
			return nil
		}
		p.draft.Voice = args[0]
		p.setStatus("voice set to " + args[0] + ", /save to persist")
		return nil
	case "/autospeak":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			p.setStatus("usage: /autospeak on|off")
			return nil
		}
		p.draft.AutoSpeak = args[0] == "on"
		p.setStatus("auto-speak " + args[0] + ", /save to persist")
		return nil
	case "/save":
		st := p.draft
		return func() tea.Msg {
			return actionDoneMsg{err: svc.SaveSettings(context.Background(), st)}
		}
	case "/clear":
		return func() tea.Msg {
			return actionDoneMsg{err: svc.ClearConversation(id)}
		}
	case "/shot":
		p.setStatus("capturing…")
		return func() tea.Msg {
			return actionDoneMsg{status: "ready", err: ignoreReported(svc.AnalyzeScreenshot(context.Background(), id))}
		}
	case "/stop":
		svc.StopSpeaking()
		return nil
	case "/speak":
		reply, err := p.pickReply(args)
		if err != nil {
			p.setError(err)
			return nil
		}
		return func() tea.Msg {
			return actionDoneMsg{err: ignoreReported(svc.ToggleSpeak(context.Background(), id, reply.control, reply.text))}
		}
	default:
		p.setStatus("unknown command " + name + ", try /help")
		return nil
	}
}

// pickReply 按 1 起始序号选择助手回复，缺省为最后一条
func (p *panel) pickReply(args []string) (chatMessage, error) {
	replies := p.replies()
	if len(replies) == 0 {
		return chatMessage{}, errors.New("no reply to speak")
	}
	if len(args) == 0 {
		return replies[len(replies)-1], nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(replies) {
		return chatMessage{}, errors.New("usage: /speak [1-" + strconv.Itoa(len(replies)) + "]")
	}
	return replies[n-1], nil
}

// ignoreReported 轮次与朗读错误已通过会话事件展示，只保留会话级错误
func ignoreReported(err error) error {
	if errors.Is(err, service.ErrSessionNotFound) {
		return err
	}
	return nil
}
