package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startWatcher(t *testing.T, config Config, path string, signals chan os.Signal) *atomic.Int32 {
	var reloads atomic.Int32

	w, err := New(Options{
		Config: config,
		Path:   path,
		Reload: func(ctx context.Context) error {
			reloads.Add(1)
			return nil
		},
		Signals: signals,
		Log:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &reloads
}

func TestWatcher_ReloadsOnSignal(t *testing.T) {
	signals := make(chan os.Signal, 1)
	path := filepath.Join(t.TempDir(), "ecosystem.json")

	reloads := startWatcher(t, Config{}, path, signals)

	signals <- syscall.SIGHUP

	require.Eventually(t, func() bool {
		return reloads.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecosystem.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"apps":[]}`), 0o644))

	reloads := startWatcher(t, Config{Enabled: true, Debounce: 200 * time.Millisecond}, path, make(chan os.Signal))

	// give the watcher time to subscribe
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"apps":[]}`), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return reloads.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ecosystem.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"apps":[]}`), 0o644))

	reloads := startWatcher(t, Config{Enabled: true, Debounce: 50 * time.Millisecond}, path, make(chan os.Signal))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), nil, 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, reloads.Load())
}
