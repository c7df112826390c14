// Package anchor mirrors the canonical integrity anchor and extends the
// append-only, tamper-evident hash chain covering every mirror ever taken.
package anchor

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// ChainEntry is one link of the anchor hash chain. Entries are immutable
// once written: ChainHash commits to both the mirrored file and the entire
// chain before it.
type ChainEntry struct {
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file"`
	SHA256    string    `json:"sha256"`
	ChainHash string    `json:"chain_hash"`
}

// Marshal encodes the entry in canonical JSON.
func (e *ChainEntry) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON entry.
func (e *ChainEntry) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(e)
}
