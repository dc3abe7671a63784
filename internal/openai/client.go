package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pagepilot/internal/ctxkeys"
	"pagepilot/internal/logger"
	"pagepilot/pkg/model"
	"pagepilot/pkg/traffic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChatRequest 流式补全请求
type ChatRequest struct {
	Model     string
	Messages  []model.Message
	MaxTokens int
}

// SpeechRequest 语音合成请求
type SpeechRequest struct {
	Model string
	Voice string
	Input string
	Speed float64
}

// Config 客户端配置
type Config struct {
	BaseURL string
	HTTP    *http.Client
	Logger  logger.Logger
}

// Client 补全与语音合成接口客户端
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// New 创建客户端
func New(cfg Config) *Client {
	hc := cfg.HTTP
	if hc == nil {
		// 流式响应不设置整体超时，由调用方 ctx 控制
		hc = &http.Client{Transport: http.DefaultTransport}
	}
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: hc, log: l}
}

// EncodeChat 构造请求体 {model, messages, stream: true, max_tokens?}
func EncodeChat(req ChatRequest) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", req.Model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetRawBytes(body, "messages", []byte(`[]`)); err != nil {
		return nil, err
	}
	for _, m := range req.Messages {
		msg, err := encodeMessage(m)
		if err != nil {
			return nil, err
		}
		if body, err = sjson.SetRawBytes(body, "messages.-1", msg); err != nil {
			return nil, err
		}
	}
	if req.MaxTokens > 0 {
		if body, err = sjson.SetBytes(body, "max_tokens", req.MaxTokens); err != nil {
			return nil, err
		}
	}
	return sjson.SetBytes(body, "stream", true)
}

func encodeMessage(m model.Message) ([]byte, error) {
	msg, err := sjson.SetBytes([]byte(`{}`), "role", string(m.Role))
	if err != nil {
		return nil, err
	}
	if len(m.Parts) > 0 {
		return sjson.SetBytes(msg, "content", m.Parts)
	}
	return sjson.SetBytes(msg, "content", m.Content)
}

// EncodeSpeech 构造请求体 {model, voice, input, speed}
func EncodeSpeech(req SpeechRequest) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"model", req.Model},
		{"voice", req.Voice},
		{"input", req.Input},
		{"speed", req.Speed},
	} {
		if body, err = sjson.SetBytes(body, kv.path, kv.value); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// StreamChat 发起流式补全；成功时返回响应体，由调用方关闭
func (c *Client) StreamChat(ctx context.Context, apiKey string, req ChatRequest) (io.ReadCloser, error) {
	body, err := EncodeChat(req)
	if err != nil {
		return nil, &model.TransportError{Op: "chat", Err: err}
	}
	res, err := c.do(ctx, "chat", apiKey, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// Speech 请求语音合成，返回原始音频数据
func (c *Client) Speech(ctx context.Context, apiKey string, req SpeechRequest) ([]byte, error) {
	body, err := EncodeSpeech(req)
	if err != nil {
		return nil, &model.TransportError{Op: "speech", Err: err}
	}
	res, err := c.do(ctx, "speech", apiKey, "/audio/speech", body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &model.TransportError{Op: "speech", Err: err}
	}
	return audio, nil
}

func (c *Client) do(ctx context.Context, op, apiKey, path string, body []byte) (*traffic.Response, error) {
	req := traffic.NewRequest(http.MethodPost, c.baseURL+path)
	req.ID = ctxkeys.TraceID(ctx)
	req.Headers.Set("Content-Type", "application/json")
	req.Headers.Set("Authorization", "Bearer "+apiKey)
	req.Body = body

	start := time.Now()
	res, err := c.send(ctx, req)
	if err != nil {
		c.log.Err(err, "远端请求失败", "op", op, "traceId", req.ID)
		return nil, &model.TransportError{Op: op, Err: err}
	}
	if !res.OK() {
		detail := readErrorMessage(res.Body)
		res.Body.Close()
		c.log.Warn("远端返回错误状态", "op", op, "status", res.StatusCode, "detail", detail, "traceId", req.ID)
		return nil, &model.TransportError{Op: op, Status: res.StatusCode}
	}
	c.log.Debug("远端请求已响应", "op", op, "status", res.StatusCode, "duration", time.Since(start), "traceId", req.ID)
	return res, nil
}

func (c *Client) send(ctx context.Context, req *traffic.Request) (*traffic.Response, error) {
	hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}
	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, err
	}
	return traffic.NewResponse(resp), nil
}

// readErrorMessage 读取错误响应中的 error.message，仅用于日志
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return msg.String()
	}
	return string(data)
}
