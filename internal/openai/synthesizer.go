package openai

import (
	"context"

	"pagepilot/pkg/model"
)

// Synthesizer 将客户端与当前设置绑定为语音合成器，每次调用读取最新的 Key 与音色
type Synthesizer struct {
	Client   *Client
	Model    string
	Speed    float64
	Settings func() model.Settings
}

// Synthesize 合成文本对应的音频
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	st := s.Settings()
	if st.APIKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	voice := st.Voice
	if voice == "" {
		voice = model.DefaultVoice
	}
	return s.Client.Speech(ctx, st.APIKey, SpeechRequest{
		Model: s.Model,
		Voice: voice,
		Input: text,
		Speed: s.Speed,
	})
}
