package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// --- Constructor ---

func TestNewFileWatcher_Defaults(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("key: val"), 0o644))

	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)

	assert.Equal(t, []string{f}, w.Paths())
	assert.False(t, w.IsRunning())
	assert.Equal(t, 100*time.Millisecond, w.debounceDelay)
	assert.Equal(t, time.Second, w.pollInterval)
}

func TestNewFileWatcher_WithOptions(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	w, err := NewFileWatcher([]string{f},
		WithDebounceDelay(500*time.Millisecond),
		WithPollInterval(20*time.Millisecond),
		WithWatcherLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err, "missing files are watched for creation")
	assert.Equal(t, 500*time.Millisecond, w.debounceDelay)
	assert.Equal(t, 20*time.Millisecond, w.pollInterval)
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}

// --- Start / Stop ---

func TestFileWatcher_StartStop(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("a"), 0o644))

	w, err := NewFileWatcher([]string{f}, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "double start")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(), "stop is idempotent")

	require.NoError(t, w.Start(ctx), "restart after stop")
	require.NoError(t, w.Stop())
}

// --- Change detection ---

func TestFileWatcher_DetectsChanges(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")

	w, err := NewFileWatcher([]string{f},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	var mu sync.Mutex
	var ops []FileOp
	w.OnChange(func(e FileEvent) {
		mu.Lock()
		ops = append(ops, e.Op)
		mu.Unlock()
	})
	seen := func(op FileOp) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, o := range ops {
				if o == op {
					return true
				}
			}
			return false
		}
	}

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(f, []byte("v1"), 0o644))
	assert.Eventually(t, seen(FileOpCreate), 2*time.Second, 10*time.Millisecond)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(f, later, later))
	assert.Eventually(t, seen(FileOpWrite), 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(f))
	assert.Eventually(t, seen(FileOpRemove), 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_StopsWithContext(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	w, err := NewFileWatcher([]string{f}, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	// Stop must not hang once the loop already exited on ctx.
	done := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after context cancel")
	}
}

// --- Loader.Watch ---

func TestLoader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	type reload struct {
		cfg *Config
		err error
	}
	reloads := make(chan reload, 8)

	w, err := NewLoader().WithConfigPath(path).Watch(context.Background(),
		func(cfg *Config, err error) {
			select {
			case reloads <- reload{cfg, err}:
			default:
			}
		},
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)
	defer w.Stop()

	write := func(content string, offset time.Duration) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		ts := time.Now().Add(offset)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	// A write may surface as more than one poll event; wait for the one we need.
	waitFor := func(match func(reload) bool) reload {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case r := <-reloads:
				if match(r) {
					return r
				}
			case <-deadline:
				t.Fatal("expected reload not observed")
				return reload{}
			}
		}
	}

	write("log:\n  level: debug\n", time.Minute)
	r := waitFor(func(r reload) bool { return r.err == nil && r.cfg.Log.Level == "debug" })
	assert.Equal(t, "debug", r.cfg.Log.Level)

	write("log:\n  level: loud\n", 2*time.Minute)
	r = waitFor(func(r reload) bool { return r.err != nil })
	assert.Nil(t, r.cfg)
	assert.Contains(t, r.err.Error(), "log level")
}

func TestLoader_Watch_RequiresPath(t *testing.T) {
	_, err := NewLoader().Watch(context.Background(), func(*Config, error) {})
	require.Error(t, err)
}
