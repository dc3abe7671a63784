package traffic

import (
	"io"
	"net/http"
	"strings"
)

// Header 封装通用的头部操作
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Request 发往远端接口的中立请求模型
type Request struct {
	ID      string // 追踪ID
	URL     string
	Method  string
	Headers Header
	Body    []byte
}

// Response 远端接口的中立响应模型；Body 由调用方负责关闭
type Response struct {
	StatusCode int
	Headers    Header
	Body       io.ReadCloser
}

// OK 状态码是否为 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NewRequest 创建初始化请求对象
func NewRequest(method, url string) *Request {
	return &Request{
		URL:     url,
		Method:  method,
		Headers: make(Header),
	}
}

// NewResponse 由 net/http 响应构造中立响应
func NewResponse(resp *http.Response) *Response {
	res := &Response{
		StatusCode: resp.StatusCode,
		Headers:    make(Header, len(resp.Header)),
		Body:       resp.Body,
	}
	for k, v := range resp.Header {
		res.Headers.Set(k, strings.Join(v, ", "))
	}
	return res
}
