package conversation

import (
	"strings"
	"sync"

	"pagepilot/pkg/model"
)

const (
	// SystemPrompt 文本对话的系统提示，每次构建请求时重新附加，不进入历史
	SystemPrompt = "You are a helpful assistant with access to the current webpage content and console logs. " +
		"Use this context to provide accurate, contextual answers about the page, debug errors, and answer questions. " +
		"The context is automatically included - the user does not see it. " +
		"Be conversational, remember previous messages in the conversation, and maintain context throughout the discussion."

	// VisionSystemPrompt 截图分析的系统提示
	VisionSystemPrompt = "You are a helpful assistant that can analyze screenshots. " +
		"Describe what you see in detail, identify any UI elements, text, images, or issues. Be thorough and helpful."

	// VisionInstruction 截图分析时随图片发送的固定指令
	VisionInstruction = "Analyze this screenshot and tell me what you see. " +
		"Describe the layout, content, and any notable elements."

	// VisionPlaceholder 截图轮次在历史中的用户消息
	VisionPlaceholder = "Analyze this screenshot: [Image]"

	// RecentLogLines 随消息附带的最近日志行数
	RecentLogLines = 20
)

// Context 一次轮询得到的页面上下文
type Context struct {
	DOM  string
	Logs []string
}

// Conversation 会话历史，仅由本对象修改
type Conversation struct {
	mu      sync.RWMutex
	history []model.Message
}

func New() *Conversation {
	return &Conversation{}
}

// ComposeUserMessage 将用户原文与上下文块拼接
func ComposeUserMessage(text string, ctx Context) string {
	var b strings.Builder
	b.WriteString(text)
	if ctx.DOM != "" {
		b.WriteString("\n\n<webpage_context>\n")
		b.WriteString(ctx.DOM)
		b.WriteString("\n</webpage_context>\n")
	}
	if len(ctx.Logs) > 0 {
		logs := ctx.Logs
		if len(logs) > RecentLogLines {
			logs = logs[len(logs)-RecentLogLines:]
		}
		b.WriteString("\n<console_logs>\n")
		b.WriteString(strings.Join(logs, "\n"))
		b.WriteString("\n</console_logs>\n")
	}
	return b.String()
}

// AppendUser 追加用户消息（含上下文块），返回实际写入历史的内容
func (c *Conversation) AppendUser(text string, ctx Context) string {
	content := ComposeUserMessage(text, ctx)
	c.append(model.Message{Role: model.RoleUser, Content: content})
	return content
}

// AppendAssistant 在流式解码完成后提交完整的助手回复
func (c *Conversation) AppendAssistant(full string) {
	c.append(model.Message{Role: model.RoleAssistant, Content: full})
}

// CommitVisualTurn 截图分析完成后写入占位用户消息与助手回复
func (c *Conversation) CommitVisualTurn(full string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history,
		model.Message{Role: model.RoleUser, Content: VisionPlaceholder},
		model.Message{Role: model.RoleAssistant, Content: full},
	)
}

func (c *Conversation) append(m model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, m)
}

// BuildRequest 返回 [system, ...history]
func (c *Conversation) BuildRequest() []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Message, 0, len(c.history)+1)
	out = append(out, model.Message{Role: model.RoleSystem, Content: SystemPrompt})
	return append(out, c.history...)
}

// BuildVisualRequest 返回 [vision system, ...history, user{指令, 图片}]
func (c *Conversation) BuildVisualRequest(imageDataURL string) []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Message, 0, len(c.history)+2)
	out = append(out, model.Message{Role: model.RoleSystem, Content: VisionSystemPrompt})
	out = append(out, c.history...)
	return append(out, model.Message{
		Role:  model.RoleUser,
		Parts: []model.ContentPart{model.TextPart(VisionInstruction), model.ImagePart(imageDataURL)},
	})
}

// History 历史副本
func (c *Conversation) History() []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Message, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// Clear 丢弃全部历史，不可恢复
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
