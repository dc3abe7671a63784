package model

import (
	"strings"
	"time"
)

type SessionID string
type TargetID string
type TurnID string

// ControlID 标识触发朗读的界面控件（通常是一条助手消息的朗读按钮）
type ControlID string

// SessionConfig 会话启动参数
type SessionConfig struct {
	DevToolsURL  string        `json:"devToolsURL"`
	Target       TargetID      `json:"target"`
	PollInterval time.Duration `json:"pollInterval"`
}

// Settings 持久化的用户设置
type Settings struct {
	APIKey    string `json:"apiKey"`
	Voice     string `json:"voice"`
	AutoSpeak bool   `json:"autoSpeak"`
}

const DefaultVoice = "alloy"

// DefaultSettings 返回默认设置
func DefaultSettings() Settings {
	return Settings{Voice: DefaultVoice}
}

// LogLevel 页面日志级别
type LogLevel string

const (
	LevelLog              LogLevel = "log"
	LevelError            LogLevel = "error"
	LevelWarn             LogLevel = "warn"
	LevelInfo             LogLevel = "info"
	LevelUncaughtError    LogLevel = "uncaughtError"
	LevelPromiseRejection LogLevel = "promiseRejection"
)

// LogEntry 一条捕获到的页面日志，创建后不可修改
type LogEntry struct {
	Level     LogLevel `json:"level"`
	Timestamp string   `json:"timestamp"`
	Message   string   `json:"message"`
}

// NewLogEntry 以当前时间创建日志条目
func NewLogEntry(level LogLevel, message string) LogEntry {
	return LogEntry{Level: level, Timestamp: FormatTimestamp(time.Now()), Message: message}
}

// FormatTimestamp 按 ISO8601 (毫秒, UTC) 格式化时间
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Line 渲染为单行文本，供上下文块使用
func (e LogEntry) Line() string {
	var tag string
	switch e.Level {
	case LevelUncaughtError:
		tag = "ERROR"
	case LevelPromiseRejection:
		tag = "PROMISE REJECTION"
	default:
		tag = strings.ToUpper(string(e.Level))
	}
	return "[" + tag + "] " + e.Timestamp + ": " + e.Message
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 对话消息；Parts 非空时代替 Content 作为结构化内容发送
type Message struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// ContentPart 结构化消息片段
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// TextPart 构造文本片段
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart 构造内联图片片段
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

type TargetInfo struct {
	ID    TargetID `json:"id"`
	Type  string   `json:"type"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
}

// EventType 会话事件类型
type EventType string

const (
	EventUserMessage    EventType = "user_message"
	EventAssistantDelta EventType = "assistant_delta"
	EventAssistantDone  EventType = "assistant_done"
	EventTurnAbandoned  EventType = "turn_abandoned"
	EventNotice         EventType = "notice"
	EventPlayback       EventType = "playback"
	EventSettingsSaved  EventType = "settings_saved"
	EventCleared        EventType = "cleared"
)

// Event 推送给界面的会话事件
type Event struct {
	Type      EventType `json:"type"`
	Session   SessionID `json:"session"`
	Turn      TurnID    `json:"turn,omitempty"`
	Control   ControlID `json:"control,omitempty"`
	Text      string    `json:"text,omitempty"`
	Playing   bool      `json:"playing,omitempty"`
	Error     error     `json:"-"`
	Timestamp int64     `json:"timestamp"`
}
