// Package snapshot bundles ledger artifacts into immutable, timestamped
// archives under a bounded retention policy. Archive files on disk are
// pruned to the retention limit; the manifest keeps a record of every
// archive ever taken, pruned or not, for audit.
package snapshot

import (
	"bufio"
	"bytes"
	"fmt"
	"time"

	"github.com/concordnetworks/concord/src/store"
	"github.com/ugorji/go/codec"
)

// ManifestKey is the store key of the append-only snapshot manifest.
const ManifestKey = "snapshot_manifest"

// Record is one manifest entry. Records outlive their archive files.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Archive   string    `json:"archive"`
	SHA256    string    `json:"sha256"`
}

// Marshal encodes the record in canonical JSON.
func (r *Record) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON record.
func (r *Record) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}

// LoadManifest reads every manifest record from a store, in append order.
func LoadManifest(db store.Store) ([]*Record, error) {
	buf, err := db.Get(ManifestKey)
	if err == store.ErrKeyNotFound {
		return []*Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	records := []*Record{}
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		record := new(Record)
		if err := record.Unmarshal(line); err != nil {
			return nil, fmt.Errorf("snapshot: manifest record %d unreadable: %v", len(records), err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
