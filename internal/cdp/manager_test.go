package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	adapter "pagepilot/internal/adapter/cdp"
	"pagepilot/internal/buffers"
	"pagepilot/internal/logger"
	"pagepilot/pkg/model"

	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func TestParseDigest(t *testing.T) {
	raw := json.RawMessage(`{
		"title": "Docs",
		"description": "",
		"headings": [{"level": "h1", "text": "Intro"}],
		"links": [{"text": "Home", "href": "https://example.com/"}],
		"fields": [{"tag": "input", "type": "", "label": "", "placeholder": "Search", "name": "q", "id": ""}],
		"main": "  hello   world ",
		"article": "",
		"body": "ignored"
	}`)

	got, err := ParseDigest(raw)
	require.NoError(t, err)
	assert.Equal(t, "Title: Docs\n\n"+
		"Headings:\nH1: Intro\n\n"+
		"Links:\nHome (https://example.com/)\n\n"+
		"Form Fields:\nINPUT (text): Search\n\n"+
		"Content:\nhello world", got)
}

func TestParseDigestInvalid(t *testing.T) {
	_, err := ParseDigest(json.RawMessage(`"not an object"`))
	assert.Error(t, err)
}

func TestDOMScriptSelectors(t *testing.T) {
	assert.Contains(t, domScript, "querySelectorAll('h1,h2,h3')")
	assert.NotContains(t, domScript, "h4")
	// 使用元素的有效类型，未写 type 属性的 input 为 text
	assert.Contains(t, domScript, "type: f.type || ''")
	assert.NotContains(t, domScript, "getAttribute('type')")
}

// fakeStream 按顺序返回事件，耗尽后阻塞直到关闭
type fakeStream[T any] struct {
	mu     sync.Mutex
	events []*T
	closed chan struct{}
	once   sync.Once
}

func newFakeStream[T any](events ...*T) *fakeStream[T] {
	return &fakeStream[T]{events: events, closed: make(chan struct{})}
}

func (s *fakeStream[T]) Recv() (*T, error) {
	s.mu.Lock()
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()
	<-s.closed
	return nil, io.EOF
}

func (s *fakeStream[T]) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func str(s string) *string { return &s }

func TestConsumeStopsOnError(t *testing.T) {
	logs := buffers.NewLogBuffer()
	events := []*runtime.ConsoleAPICalledReply{
		{Type: "log", Args: []runtime.RemoteObject{{Type: "string", Value: json.RawMessage(`"a"`)}}, Timestamp: 1704067200000},
		{Type: "debug"},
		{Type: "error", Args: []runtime.RemoteObject{{Type: "string", Value: json.RawMessage(`"b"`)}}, Timestamp: 1704067200000},
	}
	i := 0
	recv := func() (*runtime.ConsoleAPICalledReply, error) {
		if i == len(events) {
			return nil, errors.New("closed")
		}
		ev := events[i]
		i++
		return ev, nil
	}
	consume(recv, func(ev *runtime.ConsoleAPICalledReply) (model.LogEntry, bool) {
		return adapter.ToLogEntry(ev)
	}, logs, logger.NewNop())

	assert.Equal(t, []string{
		"[LOG] 2024-01-01T00:00:00.000Z: a",
		"[ERROR] 2024-01-01T00:00:00.000Z: b",
	}, logs.Lines())
}

func TestCaptureFeedsBufferAndStops(t *testing.T) {
	logs := buffers.NewLogBuffer()
	cs := newFakeStream(&runtime.ConsoleAPICalledReply{
		Type: "warning", Args: []runtime.RemoteObject{{Type: "string", Value: json.RawMessage(`"careful"`)}}, Timestamp: 1704067200000,
	})
	es := newFakeStream(&runtime.ExceptionThrownReply{
		Timestamp: 1704067200000,
		ExceptionDetails: runtime.ExceptionDetails{
			Text:      "Uncaught (in promise)",
			Exception: &runtime.RemoteObject{Type: "object", Description: str("Error: boom")},
		},
	})

	c := newCapture(logs, logger.NewNop())
	c.start(cs, es)
	require.Eventually(t, func() bool { return logs.Len() == 2 }, timeout, tick)

	c.stop()
	c.stop()

	lines := strings.Join(logs.Lines(), "\n")
	assert.Contains(t, lines, "[WARN] 2024-01-01T00:00:00.000Z: careful")
	assert.Contains(t, lines, "[PROMISE REJECTION] 2024-01-01T00:00:00.000Z: Error: boom")
}

func TestManagerRequiresAttach(t *testing.T) {
	m := New("http://127.0.0.1:1", nil)
	ctx := context.Background()

	_, err := m.GetDOMDigest(ctx)
	assert.ErrorIs(t, err, ErrNotAttached)
	_, err = m.CaptureScreenshot(ctx)
	assert.ErrorIs(t, err, ErrNotAttached)
	_, err = m.InstallCapture()
	assert.ErrorIs(t, err, ErrNotAttached)
	assert.NoError(t, m.Detach())

	logs, err := m.GetRecentLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
