package decision

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/concordnetworks/concord/src/audit"
	"github.com/concordnetworks/concord/src/coldstore"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

// Store keys.
const (
	// DecisionKey holds the latest persisted decision.
	DecisionKey = "integration_decision"

	// GovernanceRiskKey holds the externally supplied governance risk
	// record.
	GovernanceRiskKey = "governance_risk"
)

// MarkerName identifies this engine's block in the shared audit document.
const MarkerName = "decision"

// Orchestrator computes and persists the integration decision.
type Orchestrator struct {
	db     store.Store
	doc    *audit.Document
	logger *logrus.Entry

	// now is an injectable clock for tests.
	now func() time.Time
}

// NewOrchestrator instantiates a decision Orchestrator.
func NewOrchestrator(db store.Store, doc *audit.Document, logger *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		db:     db,
		doc:    doc,
		logger: logger.WithField("prefix", "decision"),
		now:    time.Now,
	}
}

// Run evaluates the inputs, persists the resulting decision with its full
// input snapshot, and refreshes the audit marker.
func (o *Orchestrator) Run(in Inputs) (*Decision, error) {
	d := &Decision{
		Final:      Evaluate(in),
		Inputs:     in,
		ComputedAt: o.now().UTC(),
	}

	buf, err := d.Marshal()
	if err != nil {
		return nil, err
	}
	if err := o.db.Set(DecisionKey, buf); err != nil {
		return nil, err
	}

	marker := fmt.Sprintf("integration decision: %s (core_ok=%t, escalation_open=%t, risk=%s)",
		d.Final, in.CoreOK, in.EscalationOpen, in.GovernanceRiskLevel)
	if err := o.doc.UpsertBlock(MarkerName, marker); err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"final":           d.Final,
		"core_ok":         in.CoreOK,
		"escalation_open": in.EscalationOpen,
		"risk":            in.GovernanceRiskLevel,
	}).Info("Integration decision computed")

	return d, nil
}

// LoadDecision reads the latest persisted decision.
func (o *Orchestrator) LoadDecision() (*Decision, error) {
	buf, err := o.db.Get(DecisionKey)
	if err != nil {
		return nil, err
	}

	d := new(Decision)
	if err := d.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("decision: persisted decision unreadable: %v", err)
	}
	return d, nil
}

// DeriveCoreOK computes the core-ok signal from the verifier summary and
// the escalation signals. The core is ok when cold storage fully verified,
// or when a correction is already in place and nothing is still open
// against it.
func DeriveCoreOK(summary coldstore.Summary, correctionPresent, escalationOpen bool) bool {
	if summary.AllVerified() {
		return true
	}
	return correctionPresent && !escalationOpen
}

// governanceRisk is the externally supplied risk record.
type governanceRisk struct {
	Level string `json:"level"`
}

// LoadGovernanceRisk reads the external governance risk level. A missing or
// malformed record degrades to yellow rather than failing the run, since
// the record is produced by a process outside this engine's control.
func LoadGovernanceRisk(db store.Store, logger *logrus.Entry) string {
	buf, err := db.Get(GovernanceRiskKey)
	if err != nil {
		logger.WithField("error", err).Debug("No governance risk record, assuming yellow")
		return RiskYellow
	}

	risk := governanceRisk{}
	if err := json.Unmarshal(buf, &risk); err != nil {
		logger.WithField("error", err).Warn("Governance risk record unreadable, assuming yellow")
		return RiskYellow
	}

	switch risk.Level {
	case RiskGreen, RiskYellow, RiskRed:
		return risk.Level
	default:
		logger.WithField("level", risk.Level).Warn("Unknown governance risk level, assuming yellow")
		return RiskYellow
	}
}
