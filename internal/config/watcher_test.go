package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWatcherFiresOnLicenseChange(t *testing.T) {
	origDebounce := debounceWrite
	debounceWrite = 10 * time.Millisecond
	t.Cleanup(func() { debounceWrite = origDebounce })

	dir := t.TempDir()
	licensePath := filepath.Join(dir, "license.json")
	require.NoError(t, os.WriteFile(licensePath, []byte(`{}`), 0644))

	var mu sync.Mutex
	var seen []byte
	w, err := NewWatcher(licensePath, "", func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		seen = data
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	require.NoError(t, os.WriteFile(licensePath, []byte(`{"licenses":[{"licenseKey":"abc"}]}`), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	origDebounce := debounceWrite
	debounceWrite = 10 * time.Millisecond
	t.Cleanup(func() { debounceWrite = origDebounce })

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(`FOO=bar`), 0644))

	var calls int
	var mu sync.Mutex
	w, err := NewWatcher("", envPath, nil, func() {
		mu.Lock()
		defer mu.Unlock()
		calls++
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	// Rewrite identical content: must not trigger a second callback.
	require.NoError(t, os.WriteFile(envPath, []byte(`FOO=bar`), 0644))
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, calls, 1)
}
