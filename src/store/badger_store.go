package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

// BadgerStore implements the Store interface on an embedded Badger database.
// It carries the same retry and fix-branch discipline as the FileStore, so
// the chain ledger can be moved off flat files without touching any engine.
type BadgerStore struct {
	db       *badger.DB
	path     string
	schedule []time.Duration
	logger   *logrus.Entry
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string, schedule []time.Duration, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if schedule == nil {
		schedule = DefaultRetrySchedule
	}

	return &BadgerStore{
		db:       handle,
		path:     path,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Get implements the Store interface.
func (s *BadgerStore) Get(key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set implements the Store interface.
func (s *BadgerStore) Set(key string, value []byte) error {
	return s.durableWrite(key, value)
}

// Has implements the Store interface.
func (s *BadgerStore) Has(key string) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	return err == nil
}

// Keys implements the Store interface.
func (s *BadgerStore) Keys(prefix string) ([]string, error) {
	keys := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Append implements the Store interface.
func (s *BadgerStore) Append(key string, value []byte) error {
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
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

func (s *BadgerStore) durableWrite(key string, value []byte) error {
	var lastErr error

	for attempt := 0; attempt <= len(s.schedule); attempt++ {
		if attempt > 0 {
			time.Sleep(s.schedule[attempt-1])
		}

		lastErr = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(key), value)
		})
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

// recordFixBranch drops the operator-intervention marker next to the
// database directory.
func (s *BadgerStore) recordFixBranch(key string, cause error) {
	rec := fixBranchRecord{
		Timestamp: time.Now().UTC(),
		Key:       key,
		Cause:     cause.Error(),
	}

	buf, err := json.Marshal(rec)
	if err == nil {
		err = os.WriteFile(filepath.Join(s.path, FixBranchFile), buf, 0644)
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
