// Package reputation scores federation peers from their historical
// agreement-drift record and auxiliary trust signals. Scores are recomputed
// fresh on every run; nothing about a peer is persisted between runs except
// the report itself.
package reputation

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// DriftSample is one point of a peer's agreement history, externally
// supplied through the peer's published drift log.
type DriftSample struct {
	Timestamp    time.Time `json:"timestamp"`
	AgreementPct float64   `json:"agreement_pct"`
}

// Record is the computed reputation of a single peer. Score is always in
// [0,100]. A degraded peer is one whose drift history could not be fetched
// or parsed; it is scored 0 but kept in the report.
type Record struct {
	Moniker  string  `json:"peer"`
	NetAddr  string  `json:"net_addr"`
	Score    float64 `json:"score"`
	Degraded bool    `json:"degraded,omitempty"`
}

// Report is the full output of one reputation run, sorted by descending
// score with ties broken by ascending moniker.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Scores    []*Record `json:"scores"`
}

// Marshal encodes the report in canonical JSON.
func (r *Report) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON report.
func (r *Report) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}

// Weights returns the report's scores keyed by moniker, for the weighted
// consensus engine.
func (r *Report) Weights() map[string]float64 {
	weights := make(map[string]float64, len(r.Scores))
	for _, rec := range r.Scores {
		weights[rec.Moniker] = rec.Score
	}
	return weights
}
