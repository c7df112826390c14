package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// FileStore implements the Store interface on a flat directory of files.
// Each key maps to one file. Writes go through a write-temp-fsync-rename
// sequence so a crash mid-write never leaves a half-written canonical file,
// and are retried on the store's backoff schedule. When the schedule is
// exhausted, a fix-branch marker is recorded next to the data and the write
// fails with ErrRetriesExhausted.
type FileStore struct {
	dir      string
	schedule []time.Duration
	logger   *logrus.Entry
}

// fixBranchRecord is the structured payload of the fix-branch marker.
type fixBranchRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	Cause     string    `json:"cause"`
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// necessary. A nil schedule selects DefaultRetrySchedule; an explicit empty
// schedule disables retries (single attempt).
func NewFileStore(dir string, schedule []time.Duration, logger *logrus.Entry) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	if schedule == nil {
		schedule = DefaultRetrySchedule
	}

	return &FileStore{
		dir:      dir,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Get implements the Store interface.
func (s *FileStore) Get(key string) ([]byte, error) {
	buf, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return buf, nil
}

// Set implements the Store interface.
func (s *FileStore) Set(key string, value []byte) error {
	return s.durableWrite(key, value)
}

// Has implements the Store interface.
func (s *FileStore) Has(key string) bool {
	_, err := os.Stat(s.keyPath(key))
	return err == nil
}

// Keys implements the Store interface.
func (s *FileStore) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	keys := []string{}
	for _, e := range entries {
		if e.IsDir() || e.Name() == FixBranchFile {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// Append implements the Store interface. The whole stream is rewritten
// atomically; append-only refers to the record discipline, not the syscall.
func (s *FileStore) Append(key string, value []byte) error {
	cur, err := s.Get(key)
	if err != nil && err != ErrKeyNotFound {
		return err
	}

	line := make([]byte, 0, len(cur)+len(value)+1)
	line = append(line, cur...)
	line = append(line, value...)
	line = append(line, '\n')

	return s.durableWrite(key, line)
}

// Close implements the Store interface.
func (s *FileStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *FileStore) StorePath() string {
	return s.dir
}

func (s *FileStore) keyPath(key string) string {
	return filepath.Join(s.dir, key)
}

// durableWrite performs the retried atomic replace. The first attempt is
// immediate; each subsequent attempt waits for the next schedule entry.
func (s *FileStore) durableWrite(key string, value []byte) error {
	var lastErr error

	for attempt := 0; attempt <= len(s.schedule); attempt++ {
		if attempt > 0 {
			time.Sleep(s.schedule[attempt-1])
		}

		lastErr = s.atomicWrite(key, value)
		if lastErr == nil {
			return nil
		}

		s.logger.WithFields(logrus.Fields{
			"key":     key,
			"attempt": attempt + 1,
			"error":   lastErr,
		}).Warn("Durable write failed")
	}

	s.recordFixBranch(key, lastErr)

	return retriesExhausted(key, lastErr)
}

// atomicWrite writes to a temp file in the same directory, syncs it, and
// renames it over the target.
func (s *FileStore) atomicWrite(key string, value []byte) error {
	target := s.keyPath(key)

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}

// recordFixBranch drops the operator-intervention marker. It is itself
// best-effort: if the medium is gone entirely there is nothing left to do
// but log.
func (s *FileStore) recordFixBranch(key string, cause error) {
	rec := fixBranchRecord{
		Timestamp: time.Now().UTC(),
		Key:       key,
		Cause:     cause.Error(),
	}

	buf, err := json.Marshal(rec)
	if err == nil {
		err = os.WriteFile(filepath.Join(s.dir, FixBranchFile), buf, 0644)
	}

	entry := s.logger.WithFields(logrus.Fields{
		"key":   key,
		"cause": cause,
	})
	if err != nil {
		entry.WithError(err).Error("Retries exhausted and fix-branch marker could not be written")
		return
	}
	entry.Error("Retries exhausted, fix-branch marker recorded")
}

// HasFixBranch reports whether a fix-branch marker is present in the store
// directory.
func (s *FileStore) HasFixBranch() bool {
	_, err := os.Stat(filepath.Join(s.dir, FixBranchFile))
	return err == nil
}
