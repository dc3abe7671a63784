package cdp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pagepilot/pkg/model"

	"github.com/mafredri/cdp/protocol/runtime"
)

// consoleLevels 需要捕获的 console 方法
var consoleLevels = map[string]model.LogLevel{
	"log":     model.LevelLog,
	"info":    model.LevelInfo,
	"warning": model.LevelWarn,
	"error":   model.LevelError,
}

// ToLogEntry 将 console API 调用事件转换为日志条目；未捕获的方法返回 false
func ToLogEntry(ev *runtime.ConsoleAPICalledReply) (model.LogEntry, bool) {
	level, ok := consoleLevels[ev.Type]
	if !ok {
		return model.LogEntry{}, false
	}
	parts := make([]string, 0, len(ev.Args))
	for i := range ev.Args {
		parts = append(parts, FormatRemoteObject(&ev.Args[i]))
	}
	return model.LogEntry{
		Level:     level,
		Timestamp: model.FormatTimestamp(toTime(ev.Timestamp)),
		Message:   strings.Join(parts, " "),
	}, true
}

// ExceptionToLogEntry 将未捕获异常事件转换为日志条目，Promise 拒绝单独归类
func ExceptionToLogEntry(ev *runtime.ExceptionThrownReply) model.LogEntry {
	d := ev.ExceptionDetails
	ts := model.FormatTimestamp(toTime(ev.Timestamp))

	reason := d.Text
	if d.Exception != nil {
		if desc := FormatRemoteObject(d.Exception); desc != "" {
			reason = desc
		}
	}
	if strings.Contains(d.Text, "(in promise)") {
		return model.LogEntry{Level: model.LevelPromiseRejection, Timestamp: ts, Message: reason}
	}

	url := ""
	if d.URL != nil {
		url = *d.URL
	}
	// CDP 行列号从 0 开始
	msg := fmt.Sprintf("%s:%d:%d - %s", url, d.LineNumber+1, d.ColumnNumber+1, reason)
	return model.LogEntry{Level: model.LevelUncaughtError, Timestamp: ts, Message: msg}
}

// FormatRemoteObject 渲染 console 参数：字符串原样输出，可序列化值输出 JSON，其余使用描述
func FormatRemoteObject(obj *runtime.RemoteObject) string {
	if len(obj.Value) > 0 {
		if obj.Type == "string" {
			var s string
			if err := json.Unmarshal(obj.Value, &s); err == nil {
				return s
			}
		}
		return string(obj.Value)
	}
	if obj.UnserializableValue != nil {
		return string(*obj.UnserializableValue)
	}
	if obj.Description != nil {
		return *obj.Description
	}
	return obj.Type
}

func toTime(ts runtime.Timestamp) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	return time.UnixMicro(int64(float64(ts) * 1000))
}
