package model

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey 未配置 API Key
var ErrMissingAPIKey = errors.New("please configure your API key in settings")

// TransportError 远端返回非成功状态或网络失败
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: API error: %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PlaybackError 语音合成或播放失败
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string { return "TTS error: " + e.Err.Error() }

func (e *PlaybackError) Unwrap() error { return e.Err }
