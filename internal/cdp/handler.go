package cdp

import (
	"sync"

	adapter "pagepilot/internal/adapter/cdp"
	"pagepilot/internal/buffers"
	"pagepilot/internal/logger"
	"pagepilot/pkg/model"

	"github.com/mafredri/cdp/protocol/runtime"
)

// consoleStream 与 exceptionStream 对应 runtime 的事件客户端
type consoleStream interface {
	Recv() (*runtime.ConsoleAPICalledReply, error)
	Close() error
}

type exceptionStream interface {
	Recv() (*runtime.ExceptionThrownReply, error)
	Close() error
}

// capture 控制台拦截器：消费事件流并写入日志缓冲区
type capture struct {
	logs *buffers.LogBuffer
	log  logger.Logger

	wg      sync.WaitGroup
	once    sync.Once
	closers []func() error
}

func newCapture(logs *buffers.LogBuffer, l logger.Logger) *capture {
	return &capture{logs: logs, log: l}
}

func (c *capture) start(cs consoleStream, es exceptionStream) {
	c.closers = append(c.closers, cs.Close, es.Close)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		consume(cs.Recv, func(ev *runtime.ConsoleAPICalledReply) (model.LogEntry, bool) {
			return adapter.ToLogEntry(ev)
		}, c.logs, c.log.With("stream", "console"))
	}()
	go func() {
		defer c.wg.Done()
		consume(es.Recv, func(ev *runtime.ExceptionThrownReply) (model.LogEntry, bool) {
			return adapter.ExceptionToLogEntry(ev), true
		}, c.logs, c.log.With("stream", "exception"))
	}()
}

// stop 关闭事件流并等待消费协程退出，可重复调用
func (c *capture) stop() {
	c.once.Do(func() {
		for _, closeFn := range c.closers {
			_ = closeFn()
		}
		c.wg.Wait()
	})
}

// consume 持续接收事件直到流关闭
func consume[T any](recv func() (*T, error), convert func(*T) (model.LogEntry, bool), logs *buffers.LogBuffer, l logger.Logger) {
	l.Debug("开始消费控制台事件流")
	for {
		ev, err := recv()
		if err != nil {
			l.Debug("控制台事件流已结束", "error", err.Error())
			return
		}
		if entry, ok := convert(ev); ok {
			logs.Push(entry)
		}
	}
}
