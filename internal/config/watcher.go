package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWrite absorbs the burst of events most editors and atomic-rename
// writers generate for a single logical save.
var debounceWrite = 250 * time.Millisecond

// Watcher reloads the license file and .env whenever either changes on disk,
// invoking onLicenseChange with the new license file contents and
// onEnvChange with no arguments.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     zerolog.Logger

	onLicenseChange func([]byte)
	onEnvChange     func()

	mu         sync.Mutex
	lastHashes map[string]string

	done chan struct{}
}

// NewWatcher watches licensePath and envPath (either may be empty to skip
// watching it) for changes.
func NewWatcher(licensePath, envPath string, onLicenseChange func([]byte), onEnvChange func(), log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:         fw,
		log:             log.With().Str("component", "config_watcher").Logger(),
		onLicenseChange: onLicenseChange,
		onEnvChange:     onEnvChange,
		lastHashes:      make(map[string]string),
		done:            make(chan struct{}),
	}

	for _, path := range []string{licensePath, envPath} {
		if path == "" {
			continue
		}
		if err := fw.Add(path); err != nil {
			// Missing files are common on first run (no license.json yet);
			// don't fail startup over it.
			w.log.Debug().Err(err).Str("path", path).Msg("could not watch file")
			continue
		}
	}

	go w.run(licensePath, envPath)
	return w, nil
}

func (w *Watcher) run(licensePath, envPath string) {
	var debounceTimer *time.Timer
	pending := make(map[string]struct{})

	fire := func() {
		for path := range pending {
			w.handleChange(path, licensePath, envPath)
		}
		pending = make(map[string]struct{})
	}

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[ev.Name] = struct{}{}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceWrite, fire)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleChange(path, licensePath, envPath string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	w.mu.Lock()
	if w.lastHashes[path] == hash {
		w.mu.Unlock()
		return
	}
	w.lastHashes[path] = hash
	w.mu.Unlock()

	switch path {
	case licensePath:
		if w.onLicenseChange != nil {
			w.onLicenseChange(data)
		}
	case envPath:
		if w.onEnvChange != nil {
			w.onEnvChange()
		}
	}
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
