package anchor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/concordnetworks/concord/src/crypto"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

// ChainKey is the store key of the append-only chain ledger.
const ChainKey = "anchor_chain"

// ErrNoAnchor is returned when the canonical integrity anchor is absent.
// This is a fatal input error for the run, distinct from any write failure:
// no mirror is produced.
var ErrNoAnchor = errors.New("anchor: canonical anchor not found")

// timestampLayout names mirror files sortably.
const timestampLayout = "20060102T150405Z"

// Mirror copies the canonical anchor into content-addressed mirror files
// and extends the hash chain.
type Mirror struct {
	anchorPath string
	mirrorDir  string
	db         store.Store
	logger     *logrus.Entry
}

// NewMirror instantiates a Mirror. anchorPath locates the canonical
// integrity anchor; mirrorDir receives the timestamped copies.
func NewMirror(anchorPath, mirrorDir string, db store.Store, logger *logrus.Entry) *Mirror {
	return &Mirror{
		anchorPath: anchorPath,
		mirrorDir:  mirrorDir,
		db:         db,
		logger:     logger.WithField("prefix", "anchor"),
	}
}

// Run mirrors the anchor once and appends the new chain entry. A missing
// anchor fails with ErrNoAnchor before anything is written. The chain
// append goes through the store's retried atomic write: if it cannot be
// made durable, Run fails hard rather than dropping the entry.
func (m *Mirror) Run() (*ChainEntry, error) {
	content, err := os.ReadFile(m.anchorPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.WithField("path", m.anchorPath).Error("Canonical anchor missing, no mirror produced")
			return nil, ErrNoAnchor
		}
		return nil, err
	}

	now := time.Now().UTC()
	sha := crypto.SHA256Hex(content)

	name := fmt.Sprintf("anchor_%s_%s%s", now.Format(timestampLayout), sha[:8], filepath.Ext(m.anchorPath))

	if err := os.MkdirAll(m.mirrorDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(m.mirrorDir, name), content, 0644); err != nil {
		m.logger.WithError(err).Error("Mirror copy failed")
		return nil, err
	}

	prev, err := m.lastChainHash()
	if err != nil {
		return nil, err
	}

	entry := &ChainEntry{
		Timestamp: now,
		File:      name,
		SHA256:    sha,
		ChainHash: crypto.ChainHash(prev, sha),
	}

	buf, err := entry.Marshal()
	if err != nil {
		return nil, err
	}
	if err := m.db.Append(ChainKey, buf); err != nil {
		m.logger.WithError(err).Error("Chain append failed after retries")
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"file":       name,
		"sha256":     sha,
		"chain_hash": entry.ChainHash,
	}).Info("Anchor mirrored, chain extended")

	return entry, nil
}

// MirrorDir returns the directory holding the mirror copies.
func (m *Mirror) MirrorDir() string {
	return m.mirrorDir
}

// Chain loads every entry of the chain ledger in order.
func (m *Mirror) Chain() ([]*ChainEntry, error) {
	return LoadChain(m.db)
}

// LoadChain reads the chain ledger from a store.
func LoadChain(db store.Store) ([]*ChainEntry, error) {
	buf, err := db.Get(ChainKey)
	if err == store.ErrKeyNotFound {
		return []*ChainEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	entries := []*ChainEntry{}
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		entry := new(ChainEntry)
		if err := entry.Unmarshal(line); err != nil {
			return nil, fmt.Errorf("anchor: chain entry %d unreadable: %v", len(entries), err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (m *Mirror) lastChainHash() (string, error) {
	entries, err := m.Chain()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].ChainHash, nil
}
