package inmemory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/corebit/corebit-server/internal/models"
)

const (
	// Persisted history is a local belt-and-suspenders copy of state the
	// Store already holds in memory; bound reads so a corrupted or tampered
	// file can't exhaust memory on load.
	maxHistoryFileSizeBytes = 64 * 1024 * 1024

	historyFileName       = "notification-history.json"
	historyBackupFileName = "notification-history.backup.json"
)

// HistorySnapshotter periodically writes the Store's NotificationHistory
// rows to disk and reloads them on startup, so delivery history survives a
// process restart even though the Store itself is in-memory. This is purely
// a local convenience snapshot, not the system of record: the Repository
// interface (C10) remains the only contract the rest of the system depends
// on.
type HistorySnapshotter struct {
	store        *Store
	file         string
	backup       string
	saveInterval time.Duration
	log          zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewHistorySnapshotter prepares a snapshotter rooted at dataDir. Loading
// happens immediately; Start launches the periodic save loop.
func NewHistorySnapshotter(store *Store, dataDir string, log zerolog.Logger) (*HistorySnapshotter, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	hs := &HistorySnapshotter{
		store:        store,
		file:         filepath.Join(dataDir, historyFileName),
		backup:       filepath.Join(dataDir, historyBackupFileName),
		saveInterval: 5 * time.Minute,
		log:          log.With().Str("component", "history_snapshot").Logger(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	if err := hs.load(); err != nil {
		hs.log.Warn().Err(err).Msg("failed to load notification history snapshot, starting empty")
	}
	return hs, nil
}

// Start launches the periodic save loop; it returns immediately.
func (hs *HistorySnapshotter) Start() {
	go hs.run()
}

func (hs *HistorySnapshotter) run() {
	defer close(hs.done)
	ticker := time.NewTicker(hs.saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-hs.stop:
			hs.saveNow()
			return
		case <-ticker.C:
			hs.saveNow()
		}
	}
}

// Stop halts the save loop after writing one final snapshot.
func (hs *HistorySnapshotter) Stop() {
	close(hs.stop)
	<-hs.done
}

func (hs *HistorySnapshotter) saveNow() {
	if err := hs.save(); err != nil {
		hs.log.Error().Err(err).Msg("failed to save notification history snapshot")
	}
}

func (hs *HistorySnapshotter) save() error {
	rows := hs.store.NotificationHistoryRows()

	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	// Rotate the existing file to backup before overwriting, matching the
	// teacher's primary/backup pair so a crash mid-write never loses both.
	if _, err := os.Stat(hs.file); err == nil {
		if err := copyFile(hs.file, hs.backup); err != nil {
			hs.log.Warn().Err(err).Msg("failed to rotate history backup file")
		}
	}

	return os.WriteFile(hs.file, data, 0o644)
}

func (hs *HistorySnapshotter) load() error {
	data, err := readLimitedRegularFile(hs.file, maxHistoryFileSizeBytes)
	if err != nil {
		if os.IsNotExist(err) {
			data, err = readLimitedRegularFile(hs.backup, maxHistoryFileSizeBytes)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			hs.log.Info().Msg("loaded notification history from backup file")
		} else {
			return err
		}
	}

	var rows []models.NotificationHistory
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("unmarshal history: %w", err)
	}
	hs.store.restoreNotificationHistory(rows)
	return nil
}

// readLimitedRegularFile reads a file with a strict max-size limit and
// rejects non-regular files, so a tampered or unbounded special file can't
// be fed back into the process as history.
func readLimitedRegularFile(path string, maxBytes int64) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("refusing to read non-regular file %q", path)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("file %q exceeds max size %d bytes", path, maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("file %q exceeds max size %d bytes", path, maxBytes)
	}
	return data, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
