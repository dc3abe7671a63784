package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pagepilot/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	err   error
	gate  chan struct{} // 非空时合成阻塞到关闭或 ctx 取消
}

func (s *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	gate, err := s.gate, s.err
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("audio:" + text), nil
}

type fakeHandle struct {
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	stopped int
}

func newFakeHandle() *fakeHandle { return &fakeHandle{done: make(chan struct{})} }

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	h.stopped++
	h.mu.Unlock()
	h.finish()
	return nil
}

func (h *fakeHandle) finish() { h.once.Do(func() { close(h.done) }) }

func (h *fakeHandle) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

type fakePlayer struct {
	mu      sync.Mutex
	handles []*fakeHandle
	err     error
}

func (p *fakePlayer) Play(audio []byte) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	h := newFakeHandle()
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakePlayer) last() *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[len(p.handles)-1]
}

type change struct {
	control model.ControlID
	playing bool
}

type recorder struct {
	mu      sync.Mutex
	changes []change
	errs    []error
}

func (r *recorder) ControlChanged(control model.ControlID, playing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{control, playing})
}

func (r *recorder) PlaybackFailed(control model.ControlID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() ([]change, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.changes...), append([]error(nil), r.errs...)
}

func newController(s *fakeSynth, p *fakePlayer, r *recorder) *Controller {
	return New(Config{Synthesizer: s, Player: p, Notifier: r})
}

func TestPlayThenToggleSameControl(t *testing.T) {
	s, p, r := &fakeSynth{}, &fakePlayer{}, &recorder{}
	c := newController(s, p, r)

	require.NoError(t, c.RequestPlay(context.Background(), "hello", "m1"))
	assert.Equal(t, StatePlaying, c.State())
	sess, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, model.ControlID("m1"), sess.Control)

	require.NoError(t, c.RequestToggle(context.Background(), "hello", "m1"))
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 1, p.last().stopCount())

	changes, _ := r.snapshot()
	assert.Equal(t, []change{{"m1", true}, {"m1", false}}, changes)
}

func TestNaturalEnd(t *testing.T) {
	s, p, r := &fakeSynth{}, &fakePlayer{}, &recorder{}
	c := newController(s, p, r)

	require.NoError(t, c.RequestPlay(context.Background(), "hello", "m1"))
	p.last().finish()

	require.Eventually(t, func() bool { return c.State() == StateIdle }, time.Second, 5*time.Millisecond)
	changes, _ := r.snapshot()
	assert.Equal(t, []change{{"m1", true}, {"m1", false}}, changes)
}

func TestOnAudioEndedDirect(t *testing.T) {
	c := newController(&fakeSynth{}, &fakePlayer{}, &recorder{})
	require.NoError(t, c.RequestPlay(context.Background(), "hello", "m1"))
	sess, _ := c.Current()

	c.OnAudioEnded("stale-id")
	assert.Equal(t, StatePlaying, c.State())

	c.OnAudioEnded(sess.ID)
	assert.Equal(t, StateIdle, c.State())
}

func TestDifferentControlStopsPrior(t *testing.T) {
	s, p, r := &fakeSynth{}, &fakePlayer{}, &recorder{}
	c := newController(s, p, r)

	require.NoError(t, c.RequestPlay(context.Background(), "one", "m1"))
	first := p.last()
	require.NoError(t, c.RequestToggle(context.Background(), "two", "m2"))

	assert.Equal(t, 1, first.stopCount())
	sess, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, model.ControlID("m2"), sess.Control)

	// 旧会话的结束通知不影响新会话
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatePlaying, c.State())

	changes, _ := r.snapshot()
	assert.Equal(t, []change{{"m1", true}, {"m1", false}, {"m2", true}}, changes)
}

func TestSynthesisFailureReturnsIdle(t *testing.T) {
	s, p, r := &fakeSynth{err: errors.New("TTS error: 500")}, &fakePlayer{}, &recorder{}
	c := newController(s, p, r)

	err := c.RequestPlay(context.Background(), "hello", "m1")
	var perr *model.PlaybackError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StateIdle, c.State())

	changes, errs := r.snapshot()
	assert.Equal(t, []change{{"m1", true}, {"m1", false}}, changes)
	require.Len(t, errs, 1)
}

func TestPlayerFailureReturnsIdle(t *testing.T) {
	c := newController(&fakeSynth{}, &fakePlayer{err: errors.New("no device")}, &recorder{})
	err := c.RequestPlay(context.Background(), "hello", "m1")
	require.Error(t, err)
	assert.Equal(t, StateIdle, c.State())
}

func TestToggleDuringSynthesisCancelsFetch(t *testing.T) {
	gate := make(chan struct{})
	s, p, r := &fakeSynth{gate: gate}, &fakePlayer{}, &recorder{}
	c := newController(s, p, r)

	errc := make(chan error, 1)
	go func() { errc <- c.RequestPlay(context.Background(), "slow", "m1") }()
	require.Eventually(t, func() bool { return c.State() == StatePlaying }, time.Second, time.Millisecond)

	require.NoError(t, c.RequestToggle(context.Background(), "slow", "m1"))
	assert.Equal(t, StateIdle, c.State())
	require.NoError(t, <-errc)

	p.mu.Lock()
	assert.Empty(t, p.handles)
	p.mu.Unlock()
	_, errs := r.snapshot()
	assert.Empty(t, errs)
}

func TestEmptyTextIgnored(t *testing.T) {
	s := &fakeSynth{}
	c := newController(s, &fakePlayer{}, &recorder{})
	require.NoError(t, c.RequestPlay(context.Background(), "  ", "m1"))
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, s.calls)
}

func TestStop(t *testing.T) {
	p := &fakePlayer{}
	c := newController(&fakeSynth{}, p, &recorder{})
	require.NoError(t, c.RequestPlay(context.Background(), "hello", ""))
	c.Stop()
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 1, p.last().stopCount())
	c.Stop()
}

func TestAtMostOneActiveUnderConcurrency(t *testing.T) {
	p := &fakePlayer{}
	c := newController(&fakeSynth{}, p, &recorder{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.RequestToggle(context.Background(), "text", model.ControlID(string(rune('a'+i%3))))
		}(i)
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	live := 0
	for _, h := range p.handles {
		select {
		case <-h.done:
		default:
			live++
		}
	}
	assert.LessOrEqual(t, live, 1)
}
