// Package drift inspects the latest weighted-consensus result and decides
// whether provenance drift is tolerable, a soft warning, or a blocking
// failure.
package drift

import (
	"bytes"
	"time"

	"github.com/concordnetworks/concord/src/consensus"
	"github.com/ugorji/go/codec"
)

// Outcome is the enumerated result of a detector run. Callers branch on
// this value, never on serialized text.
type Outcome int

const (
	// OutcomeClean means full agreement, nothing logged.
	OutcomeClean Outcome = iota
	// OutcomeWarning means drift was logged but stays above the critical
	// threshold. Non-blocking.
	OutcomeWarning
	// OutcomeCritical means agreement fell below the critical threshold.
	// The run must fail the external automation gate.
	OutcomeCritical
)

// String returns the string representation of an Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeWarning:
		return "warning"
	case OutcomeCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RepairAction is a typed capability for best-effort rebuild-and-resync
// steps triggered when drift is detected with the repair flag set.
type RepairAction interface {
	// Name identifies the action in logs and results.
	Name() string
	// Execute performs the repair.
	Execute() error
}

// actionFunc adapts a named function to the RepairAction interface.
type actionFunc struct {
	name string
	fn   func() error
}

func (a *actionFunc) Name() string   { return a.name }
func (a *actionFunc) Execute() error { return a.fn() }

// NewAction wraps a named function as a RepairAction. Callers use it to
// hand existing engine runs (mirror resync, snapshot rebuild) to the
// detector without a dedicated type.
func NewAction(name string, fn func() error) RepairAction {
	return &actionFunc{name: name, fn: fn}
}

// RepairResult records the outcome of one repair action. Failures are
// captured, never swallowed.
type RepairResult struct {
	Action    string `json:"action"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// Result is the full outcome of one detector run.
type Result struct {
	Outcome      Outcome        `json:"-"`
	OutcomeName  string         `json:"outcome"`
	AgreementPct float64        `json:"agreement_pct"`
	Repairs      []RepairResult `json:"repairs,omitempty"`
}

// logEntry is one appended drift-log record: the detector's own verdict
// plus the full consensus snapshot that triggered it.
type logEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Outcome   string            `json:"outcome"`
	Snapshot  *consensus.Report `json:"snapshot"`
}

func (l *logEntry) marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(l); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
