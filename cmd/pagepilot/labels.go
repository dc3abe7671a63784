package main

const (
	speakLabel = "🔊 Speak"
	stopLabel  = "⏹ Stop"
	appTitle   = "pagepilot"
)

var roleLabels = map[string]string{
	roleUser:      "You",
	roleAssistant: "Assistant",
	roleSystem:    "System",
}

const helpText = `/key <apiKey>        设置 API Key（需要 /save 保存）
/voice <name>        设置朗读音色
/autospeak on|off    回复完成后自动朗读
/save                保存设置
/clear               清空对话
/shot                截图并分析当前页面
/speak [n]           朗读或停止第 n 条回复（默认最后一条）
/stop                停止朗读
/help                显示帮助
/quit                退出`

// controlLabel 朗读按钮文案，只由播放事件驱动
func controlLabel(playing bool) string {
	if playing {
		return stopLabel
	}
	return speakLabel
}
