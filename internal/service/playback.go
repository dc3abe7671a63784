package service

import (
	"context"

	"pagepilot/pkg/model"
)

// narrator 会话的自动朗读入口，记录控件归属后转交控制器
type narrator struct {
	s       *Service
	session model.SessionID
}

func (n *narrator) RequestPlay(ctx context.Context, text string, control model.ControlID) error {
	n.s.bind(control, n.session)
	return n.s.speaker.RequestPlay(ctx, text, control)
}

// notifier 将控制器状态转换为所属会话的事件；在控制器锁内调用
type notifier struct{ s *Service }

func (n *notifier) ControlChanged(control model.ControlID, playing bool) {
	id, ch, ok := n.s.owner(control)
	if !ok {
		return
	}
	emit(ch, model.Event{Type: model.EventPlayback, Session: id, Control: control, Playing: playing})
}

func (n *notifier) PlaybackFailed(control model.ControlID, err error) {
	id, ch, ok := n.s.owner(control)
	if !ok {
		return
	}
	emit(ch, model.Event{Type: model.EventNotice, Session: id, Control: control, Text: "Error: " + err.Error(), Error: err})
}
