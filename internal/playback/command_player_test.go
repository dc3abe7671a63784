//go:build !windows

package playback

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandPlayerNaturalEnd(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	p := &CommandPlayer{Command: []string{"sh", "-c", `test -s "$1"`, "sh"}, TempDir: dir}

	h, err := p.Play([]byte("fake-mp3"))
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("player did not finish")
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, h.Stop())
}

func TestCommandPlayerStop(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	p := &CommandPlayer{Command: []string{"sh", "-c", "sleep 30", "sh"}, TempDir: dir}

	h, err := p.Play([]byte("fake-mp3"))
	require.NoError(t, err)
	require.NoError(t, h.Stop())

	select {
	case <-h.Done():
	default:
		t.Fatal("done not closed after stop")
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, h.Stop())
}

func TestCommandPlayerMissingCommand(t *testing.T) {
	_, err := (&CommandPlayer{}).Play([]byte("x"))
	require.Error(t, err)

	dir := t.TempDir()
	_, err = (&CommandPlayer{Command: []string{"/nonexistent/player"}, TempDir: dir}).Play([]byte("x"))
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}
