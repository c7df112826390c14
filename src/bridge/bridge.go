// Package bridge merges the latest weighted-consensus report with the
// externally produced trust-federation report into one unified snapshot.
// It is a pure merge: missing or malformed inputs default to neutral
// values, and the bridge never fails on input.
package bridge

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/concordnetworks/concord/src/consensus"
	"github.com/concordnetworks/concord/src/store"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// Store keys.
const (
	// TrustReportKey is where the external collaborator drops the
	// trust-federation report.
	TrustReportKey = "trust_federation_report"

	// SnapshotKey is where the unified snapshot is persisted.
	SnapshotKey = "trust_consensus_snapshot"
)

// trustReportSchema describes the externally produced trust-federation
// report. Violations downgrade to neutral values.
const trustReportSchema = `{
	"type": "object",
	"properties": {
		"verified": {"type": "boolean"},
		"source":   {"type": "string"}
	}
}`

var compiledTrustReportSchema = jsonschema.MustCompileString("trust_report.schema.json", trustReportSchema)

// trustReport is the tolerantly decoded external report.
type trustReport struct {
	Verified bool   `json:"verified"`
	Source   string `json:"source"`
}

// Snapshot is the unified trust/consensus view.
type Snapshot struct {
	Timestamp            time.Time          `json:"timestamp"`
	WeightedAgreementPct float64            `json:"weighted_agreement_pct"`
	Categories           map[string]float64 `json:"categories"`
	TrustVerified        bool               `json:"trust_verified"`
	TrustSource          string             `json:"trust_source,omitempty"`
}

// Marshal encodes the snapshot in canonical JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON snapshot.
func (s *Snapshot) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(s)
}

// Bridge merges consensus and trust-federation inputs.
type Bridge struct {
	db     store.Store
	logger *logrus.Entry
}

// NewBridge instantiates a Bridge.
func NewBridge(db store.Store, logger *logrus.Entry) *Bridge {
	return &Bridge{
		db:     db,
		logger: logger.WithField("prefix", "bridge"),
	}
}

// Run builds and persists the unified snapshot.
func (b *Bridge) Run() (*Snapshot, error) {
	snapshot := &Snapshot{
		Timestamp:  time.Now().UTC(),
		Categories: map[string]float64{},
	}

	b.mergeConsensus(snapshot)
	b.mergeTrust(snapshot)

	buf, err := snapshot.Marshal()
	if err != nil {
		return nil, err
	}
	if err := b.db.Set(SnapshotKey, buf); err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"weighted_agreement_pct": snapshot.WeightedAgreementPct,
		"trust_verified":         snapshot.TrustVerified,
	}).Info("Trust/consensus snapshot merged")

	return snapshot, nil
}

func (b *Bridge) mergeConsensus(snapshot *Snapshot) {
	buf, err := b.db.Get(consensus.ReportKey)
	if err != nil {
		b.logger.Debug("No consensus report, neutral agreement")
		return
	}

	report := new(consensus.Report)
	if err := report.Unmarshal(buf); err != nil {
		b.logger.WithError(err).Warn("Consensus report unreadable, neutral agreement")
		return
	}

	snapshot.WeightedAgreementPct = report.WeightedAgreementPct
	for category, result := range report.Categories {
		snapshot.Categories[category] = result.AgreementPct
	}
}

func (b *Bridge) mergeTrust(snapshot *Snapshot) {
	buf, err := b.db.Get(TrustReportKey)
	if err != nil {
		b.logger.Debug("No trust-federation report, neutral trust status")
		return
	}

	var raw interface{}
	if err := json.Unmarshal(buf, &raw); err != nil {
		b.logger.WithError(err).Warn("Trust-federation report unreadable, neutral trust status")
		return
	}
	if err := compiledTrustReportSchema.Validate(raw); err != nil {
		b.logger.WithError(err).Warn("Trust-federation report failed schema validation, neutral trust status")
		return
	}

	var report trustReport
	if err := json.Unmarshal(buf, &report); err != nil {
		return
	}

	snapshot.TrustVerified = report.Verified
	snapshot.TrustSource = report.Source
}
