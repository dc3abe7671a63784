package playback

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// CommandPlayer 将音频写入临时文件后交给外部播放器进程，进程退出即播放结束
type CommandPlayer struct {
	Command []string // 播放命令，音频文件路径追加在末尾
	TempDir string
}

// Play 启动播放进程
func (p *CommandPlayer) Play(audio []byte) (Handle, error) {
	if len(p.Command) == 0 {
		return nil, errors.New("未配置播放命令")
	}
	f, err := os.CreateTemp(p.TempDir, "pagepilot-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("创建临时音频文件失败: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("写入临时音频文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	args := append(append([]string{}, p.Command[1:]...), path)
	cmd := exec.Command(p.Command[0], args...)
	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("启动播放器失败: %w", err)
	}

	h := &processHandle{cmd: cmd, path: path, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

type processHandle struct {
	cmd  *exec.Cmd
	path string
	done chan struct{}
	once sync.Once
	err  error
}

func (h *processHandle) wait() {
	_ = h.cmd.Wait()
	os.Remove(h.path)
	close(h.done)
}

func (h *processHandle) Done() <-chan struct{} { return h.done }

// Stop 终止播放进程并等待临时文件清理完成
func (h *processHandle) Stop() error {
	h.once.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.err = err
		}
	})
	if h.err != nil {
		return h.err
	}
	<-h.done
	return nil
}
