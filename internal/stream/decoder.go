// Package stream 解码流式补全响应中的 "data: <json>" 事件行
package stream

import (
	"bytes"
	"errors"
	"io"
	"iter"

	"pagepilot/pkg/model"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix  = "data:"
	doneMarker  = "[DONE]"
	contentPath = "choices.0.delta.content"
	readSize    = 4096
)

// State 解码器状态
type State int

const (
	StateIdle State = iota
	StateReading
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Delta 一段增量文本
type Delta struct {
	Text string
}

// Decoder 按行切分传输分片并提取增量文本；每个请求使用新的实例
type Decoder struct {
	state   State
	pending []byte // 尚未遇到换行的残余字节
	dropped int
}

// NewDecoder 创建解码器
func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) State() State { return d.state }

// Dropped 被丢弃的畸形数据行数量
func (d *Decoder) Dropped() int { return d.dropped }

// Feed 处理一个分片，返回其中完整行产生的增量；跨分片的行会被拼接
func (d *Decoder) Feed(chunk []byte) []Delta {
	if d.state == StateDone {
		return nil
	}
	d.state = StateReading

	var out []Delta
	d.pending = append(d.pending, chunk...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		if delta, ok := d.decodeLine(d.pending[:i]); ok {
			out = append(out, delta)
		}
		d.pending = d.pending[i+1:]
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return out
}

// Close 在传输结束时调用：处理末尾未换行的残余数据并进入 Done
func (d *Decoder) Close() []Delta {
	if d.state == StateDone {
		return nil
	}
	d.state = StateDone
	rest := d.pending
	d.pending = nil
	if len(rest) == 0 {
		return nil
	}
	if delta, ok := d.decodeLine(rest); ok {
		return []Delta{delta}
	}
	return nil
}

func (d *Decoder) decodeLine(line []byte) (Delta, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Delta{}, false
	}
	payload := line[len(dataPrefix):]
	payload = bytes.TrimPrefix(payload, []byte{' '})
	if string(payload) == doneMarker {
		// 结束标记仅作提示，真正的结束以传输关闭为准
		return Delta{}, false
	}
	if !gjson.ValidBytes(payload) {
		d.dropped++
		return Delta{}, false
	}
	res := gjson.GetBytes(payload, contentPath)
	if res.Type != gjson.String || res.Str == "" {
		return Delta{}, false
	}
	return Delta{Text: res.Str}, true
}

// Deltas 从传输中惰性读取增量；序列只能消费一次，读失败时产出一次 TransportError 后结束
func Deltas(r io.Reader) iter.Seq2[Delta, error] {
	return func(yield func(Delta, error) bool) {
		d := NewDecoder()
		buf := make([]byte, readSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, delta := range d.Feed(buf[:n]) {
					if !yield(delta, nil) {
						return
					}
				}
			}
			if err == nil {
				continue
			}
			for _, delta := range d.Close() {
				if !yield(delta, nil) {
					return
				}
			}
			if !errors.Is(err, io.EOF) {
				yield(Delta{}, &model.TransportError{Op: "stream", Err: err})
			}
			return
		}
	}
}

// Collect 读取全部增量并拼接，便于测试与非交互场景
func Collect(r io.Reader) (string, error) {
	var b bytes.Buffer
	for delta, err := range Deltas(r) {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(delta.Text)
	}
	return b.String(), nil
}
