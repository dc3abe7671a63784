package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pagepilot/internal/stream"
	"pagepilot/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEncodeChat(t *testing.T) {
	body, err := EncodeChat(ChatRequest{
		Model: "gpt-4o",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "sys"},
			{Role: model.RoleUser, Parts: []model.ContentPart{
				model.TextPart("look"),
				model.ImagePart("data:image/png;base64,AA"),
			}},
		},
		MaxTokens: 1000,
	})
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(body))

	j := string(body)
	assert.Equal(t, "gpt-4o", gjson.Get(j, "model").String())
	assert.True(t, gjson.Get(j, "stream").Bool())
	assert.Equal(t, int64(1000), gjson.Get(j, "max_tokens").Int())
	assert.Equal(t, int64(2), gjson.Get(j, "messages.#").Int())
	assert.Equal(t, "sys", gjson.Get(j, "messages.0.content").String())
	assert.Equal(t, "text", gjson.Get(j, "messages.1.content.0.type").String())
	assert.Equal(t, "look", gjson.Get(j, "messages.1.content.0.text").String())
	assert.Equal(t, "data:image/png;base64,AA", gjson.Get(j, "messages.1.content.1.image_url.url").String())
}

func TestEncodeChatOmitsMaxTokens(t *testing.T) {
	body, err := EncodeChat(ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(body, "max_tokens").Exists())
	assert.Equal(t, int64(0), gjson.GetBytes(body, "messages.#").Int())
}

func TestEncodeSpeech(t *testing.T) {
	body, err := EncodeSpeech(SpeechRequest{Model: "tts-1", Voice: "alloy", Input: "hi", Speed: 1.0})
	require.NoError(t, err)
	assert.Equal(t, "tts-1", gjson.GetBytes(body, "model").String())
	assert.Equal(t, "alloy", gjson.GetBytes(body, "voice").String())
	assert.Equal(t, "hi", gjson.GetBytes(body, "input").String())
	assert.Equal(t, 1.0, gjson.GetBytes(body, "speed").Float())
}

func TestStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(body, "model").String())

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Hel", "lo"} {
			_, _ = io.WriteString(w, `data: {"choices":[{"delta":{"content":"`+part+`"}}]}`+"\n\n")
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1/"})
	rc, err := c.StreamChat(context.Background(), "sk-test", ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	defer rc.Close()

	text, err := stream.Collect(rc)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestStreamChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.StreamChat(context.Background(), "sk-bad", ChatRequest{Model: "m"})
	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.Status)
	assert.Equal(t, "chat: API error: 401", err.Error())
}

func TestStreamChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url})
	_, err := c.StreamChat(context.Background(), "k", ChatRequest{Model: "m"})
	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.Status)
	assert.Error(t, te.Err)
}

func TestSpeech(t *testing.T) {
	audio := []byte{0x49, 0x44, 0x33, 0x04}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "nova", gjson.GetBytes(body, "voice").String())
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	got, err := c.Speech(context.Background(), "k", SpeechRequest{Model: "tts-1", Voice: "nova", Input: "hi", Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestSpeechErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Speech(context.Background(), "k", SpeechRequest{Model: "tts-1"})
	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.Status)
}

func TestSynthesizerRequiresKey(t *testing.T) {
	s := &Synthesizer{
		Client:   New(Config{BaseURL: "http://127.0.0.1:1"}),
		Model:    "tts-1",
		Speed:    1,
		Settings: func() model.Settings { return model.Settings{} },
	}
	_, err := s.Synthesize(context.Background(), "hi")
	require.ErrorIs(t, err, model.ErrMissingAPIKey)
}

func TestSynthesizerDefaultsVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, model.DefaultVoice, gjson.GetBytes(body, "voice").String())
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	s := &Synthesizer{
		Client:   New(Config{BaseURL: srv.URL}),
		Model:    "tts-1",
		Speed:    1,
		Settings: func() model.Settings { return model.Settings{APIKey: "k"} },
	}
	audio, err := s.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
}
