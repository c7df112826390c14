package drift

import (
	"errors"
	"fmt"
	"time"

	"github.com/concordnetworks/concord/src/audit"
	"github.com/concordnetworks/concord/src/consensus"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

// LogKey is the store key of the append-only drift log.
const LogKey = "drift_log"

// MarkerName identifies this engine's block in the shared audit document.
const MarkerName = "drift"

// DefaultCriticalThreshold is the agreement percentage below which the run
// becomes a blocking failure.
const DefaultCriticalThreshold = 90.0

// ErrNoConsensusReport is returned when the detector has nothing to
// inspect. The consensus report is a required input with no safe default.
var ErrNoConsensusReport = errors.New("drift: no consensus report")

// Config bundles the detector parameters.
type Config struct {
	// CriticalThreshold separates soft warnings from blocking failures.
	CriticalThreshold float64

	// Repair triggers the configured repair actions when drift is
	// detected.
	Repair bool
}

// DefaultConfig returns the default detector parameters.
func DefaultConfig() Config {
	return Config{
		CriticalThreshold: DefaultCriticalThreshold,
	}
}

// Detector evaluates the latest consensus result.
type Detector struct {
	db      store.Store
	doc     *audit.Document
	actions []RepairAction
	config  Config
	logger  *logrus.Entry
}

// NewDetector instantiates a drift Detector.
func NewDetector(db store.Store, doc *audit.Document, actions []RepairAction, config Config, logger *logrus.Entry) *Detector {
	return &Detector{
		db:      db,
		doc:     doc,
		actions: actions,
		config:  config,
		logger:  logger.WithField("prefix", "drift"),
	}
}

// Run reads the latest consensus report and classifies its agreement level.
// Anything below 100% appends one drift-log entry with the full snapshot
// and updates the audit marker; this is a logging action, not a failure.
// Below the critical threshold the outcome is OutcomeCritical, which the
// CLI maps to a distinct nonzero exit code.
func (d *Detector) Run() (*Result, error) {
	buf, err := d.db.Get(consensus.ReportKey)
	if err == store.ErrKeyNotFound {
		return nil, ErrNoConsensusReport
	}
	if err != nil {
		return nil, err
	}

	report := new(consensus.Report)
	if err := report.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("drift: consensus report unreadable: %v", err)
	}

	result := &Result{
		AgreementPct: report.WeightedAgreementPct,
	}
	switch {
	case report.WeightedAgreementPct >= 100:
		result.Outcome = OutcomeClean
	case report.WeightedAgreementPct >= d.config.CriticalThreshold:
		result.Outcome = OutcomeWarning
	default:
		result.Outcome = OutcomeCritical
	}
	result.OutcomeName = result.Outcome.String()

	if result.Outcome == OutcomeClean {
		d.logger.Info("Full agreement, no drift")
		return result, nil
	}

	if err := d.logDrift(result, report); err != nil {
		return nil, err
	}

	if d.config.Repair {
		result.Repairs = d.repair()
	}

	d.logger.WithFields(logrus.Fields{
		"agreement_pct": result.AgreementPct,
		"outcome":       result.Outcome.String(),
		"threshold":     d.config.CriticalThreshold,
	}).Warn("Provenance drift detected")

	return result, nil
}

// logDrift appends the drift-log entry and updates the audit marker.
func (d *Detector) logDrift(result *Result, report *consensus.Report) error {
	entry := &logEntry{
		Timestamp: time.Now().UTC(),
		Outcome:   result.Outcome.String(),
		Snapshot:  report,
	}

	buf, err := entry.marshal()
	if err != nil {
		return err
	}
	if err := d.db.Append(LogKey, buf); err != nil {
		return err
	}

	marker := fmt.Sprintf("drift %s: weighted agreement %.1f%% (critical below %.1f%%)",
		result.Outcome, result.AgreementPct, d.config.CriticalThreshold)
	return d.doc.UpsertBlock(MarkerName, marker)
}

// repair executes each configured action best-effort. A failed action is
// recorded and logged; it never stops the remaining actions or the
// detector.
func (d *Detector) repair() []RepairResult {
	results := make([]RepairResult, 0, len(d.actions))

	for _, action := range d.actions {
		res := RepairResult{Action: action.Name()}

		if err := action.Execute(); err != nil {
			res.Error = err.Error()
			d.logger.WithFields(logrus.Fields{
				"action": action.Name(),
				"error":  err,
			}).Warn("Repair action failed")
		} else {
			res.Succeeded = true
			d.logger.WithField("action", action.Name()).Info("Repair action succeeded")
		}

		results = append(results, res)
	}

	return results
}
