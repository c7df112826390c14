package peers

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"
)

// registrySchema describes the expected shape of the peer registry file.
// The registry is produced by an external collaborator, so the schema is
// enforced tolerantly: a violation is logged and decoding falls back to
// keeping only the entries that carry a moniker.
const registrySchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"moniker":  {"type": "string", "minLength": 1},
			"net_addr": {"type": "string"}
		},
		"required": ["moniker"]
	}
}`

var compiledRegistrySchema = jsonschema.MustCompileString("peers.schema.json", registrySchema)

// JSONPeerSet is used to provide peer persistence on disk in the form of a
// JSON file.
type JSONPeerSet struct {
	l      sync.Mutex
	path   string
	logger *logrus.Entry
}

// NewJSONPeerSet creates a new JSONPeerSet reading and writing the JSON
// file at path.
func NewJSONPeerSet(path string, logger *logrus.Entry) *JSONPeerSet {
	return &JSONPeerSet{
		path:   path,
		logger: logger,
	}
}

// PeerSet parses the underlying JSON file and returns the corresponding
// PeerSet. A missing or empty file resolves to an empty set, not an error.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			j.logger.WithField("path", j.path).Debug("No peer registry, using empty peer-set")
			return NewPeerSet([]*Peer{}), nil
		}
		return nil, err
	}

	if len(buf) == 0 {
		return NewPeerSet([]*Peer{}), nil
	}

	if err := j.validate(buf); err != nil {
		j.logger.WithError(err).Warn("Peer registry failed schema validation, decoding tolerantly")
	}

	var peers []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	return NewPeerSet(cleansePeers(peers)), nil
}

// validate checks the raw registry against the registry schema.
func (j *JSONPeerSet) validate(buf []byte) error {
	var v interface{}
	if err := json.Unmarshal(buf, &v); err != nil {
		return err
	}
	return compiledRegistrySchema.Validate(v)
}

// cleansePeers drops registry entries with no moniker. They cannot take part
// in the weighted tally and would collide on the empty key.
func cleansePeers(peers []*Peer) []*Peer {
	cleansed := make([]*Peer, 0, len(peers))
	for _, p := range peers {
		if p == nil || p.Moniker == "" {
			continue
		}
		cleansed = append(cleansed, p)
	}
	return cleansed
}

// Write persists a peer slice to the JSON file.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	b := new(bytes.Buffer)
	enc := json.NewEncoder(b)
	enc.SetIndent("", "\t")
	if err := enc.Encode(peers); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}

	return os.WriteFile(j.path, b.Bytes(), 0644)
}
