package buffers

import (
	"sync"

	"pagepilot/pkg/model"
)

// LogCapacity 页面日志环形缓冲区容量
const LogCapacity = 100

// RingBuffer 固定容量的环形缓冲区，满时按 FIFO 淘汰最旧条目；并发安全
type RingBuffer[T any] struct {
	mu       sync.RWMutex
	entries  []T
	capacity int
	head     int // 下一次写入的位置
}

// NewRingBuffer 创建指定容量的环形缓冲区，容量小于 1 时按 1 处理
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// WriteOne 写入单个条目；长度检查与淘汰在同一把锁内完成
func (rb *RingBuffer[T]) WriteOne(entry T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) < rb.capacity {
		rb.entries = append(rb.entries, entry)
	} else {
		rb.entries[rb.head] = entry
	}
	rb.head = (rb.head + 1) % rb.capacity
}

// ReadAll 按从旧到新的顺序返回全部条目的副本
func (rb *RingBuffer[T]) ReadAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lastLocked(len(rb.entries))
}

// ReadLast 返回最近 n 个条目，从旧到新
func (rb *RingBuffer[T]) ReadLast(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lastLocked(n)
}

func (rb *RingBuffer[T]) lastLocked(n int) []T {
	size := len(rb.entries)
	if size == 0 || n <= 0 {
		return nil
	}
	if n > size {
		n = size
	}
	result := make([]T, n)
	if size < rb.capacity {
		copy(result, rb.entries[size-n:])
		return result
	}
	// 已写满：head 指向最旧条目
	start := (rb.head + size - n) % rb.capacity
	k := copy(result, rb.entries[start:])
	copy(result[k:], rb.entries[:n-k])
	return result
}

// Len 当前条目数
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Cap 容量
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity
}

// Clear 清空缓冲区
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries = rb.entries[:0]
	rb.head = 0
}

// LogBuffer 页面日志缓冲区，仅由日志拦截器写入，其余组件只读
type LogBuffer struct {
	rb *RingBuffer[model.LogEntry]
}

// NewLogBuffer 创建容量为 LogCapacity 的日志缓冲区
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{rb: NewRingBuffer[model.LogEntry](LogCapacity)}
}

// Push 追加日志，超出容量时淘汰最旧的一条
func (b *LogBuffer) Push(entry model.LogEntry) {
	b.rb.WriteOne(entry)
}

// Snapshot 返回当前内容的独立副本
func (b *LogBuffer) Snapshot() []model.LogEntry {
	return b.rb.ReadAll()
}

// Lines 将全部日志渲染为文本行
func (b *LogBuffer) Lines() []string {
	entries := b.rb.ReadAll()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line()
	}
	return lines
}

func (b *LogBuffer) Len() int { return b.rb.Len() }
