package escalation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/concordnetworks/concord/src/audit"
	"github.com/concordnetworks/concord/src/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store keys.
const (
	// stateKeyPrefix prefixes the per-subject current-state records.
	stateKeyPrefix = "escalation_state_"

	// LogKey is the append-only escalation log.
	LogKey = "escalation_log"
)

// MarkerName identifies this engine's block in the shared audit document.
const MarkerName = "escalation"

// DefaultSLA is how long an escalation may sit Pending before it is forced
// InProgress.
const DefaultSLA = 24 * time.Hour

// Engine evaluates escalation lifecycles by polling. It is re-run on a
// schedule; each Poll advances one subject's lifecycle as far as the
// current signals allow.
type Engine struct {
	db     store.Store
	doc    *audit.Document
	sla    time.Duration
	logger *logrus.Entry

	// now is an injectable clock for tests.
	now func() time.Time
}

// NewEngine instantiates an escalation Engine. An sla of 0 selects the
// default.
func NewEngine(db store.Store, doc *audit.Document, sla time.Duration, logger *logrus.Entry) *Engine {
	if sla == 0 {
		sla = DefaultSLA
	}
	return &Engine{
		db:     db,
		doc:    doc,
		sla:    sla,
		logger: logger.WithField("prefix", "escalation"),
		now:    time.Now,
	}
}

// Poll evaluates one subject against the current signals. It opens a new
// Pending escalation when the verifier failed and no non-terminal record
// exists, or advances the open record through every transition the signals
// currently justify. It returns the subject's record after evaluation, or
// nil when there is nothing to track.
//
// Transitions are made durable through the store's retried atomic replace.
// When retries are exhausted the store has already recorded the fix-branch
// marker; Poll reports the error without crashing or retrying further.
func (e *Engine) Poll(subject string, sig Signals) (*Record, error) {
	record, err := e.load(subject)
	if err != nil {
		return nil, err
	}

	if record == nil || record.CurrentState().Terminal() {
		if !sig.VerifierFailed {
			return record, nil
		}
		return e.open(subject, sig)
	}

	return e.advance(record, sig)
}

// OpenEscalations returns every non-terminal record, sorted by subject.
func (e *Engine) OpenEscalations() ([]*Record, error) {
	keys, err := e.db.Keys(stateKeyPrefix)
	if err != nil {
		return nil, err
	}

	open := []*Record{}
	for _, key := range keys {
		buf, err := e.db.Get(key)
		if err != nil {
			return nil, err
		}
		record := new(Record)
		if err := record.Unmarshal(buf); err != nil {
			return nil, fmt.Errorf("escalation: record %s unreadable: %v", key, err)
		}
		if !record.CurrentState().Terminal() {
			open = append(open, record)
		}
	}

	sort.Slice(open, func(i, j int) bool { return open[i].Subject < open[j].Subject })

	return open, nil
}

func (e *Engine) load(subject string) (*Record, error) {
	buf, err := e.db.Get(stateKey(subject))
	if err == store.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	record := new(Record)
	if err := record.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("escalation: state record for %s unreadable: %v", subject, err)
	}
	return record, nil
}

// open creates a fresh Pending escalation for the subject.
func (e *Engine) open(subject string, sig Signals) (*Record, error) {
	now := e.now().UTC()

	record := &Record{
		ID:                uuid.New().String(),
		Subject:           subject,
		State:             Pending.String(),
		CreatedAt:         now,
		LastTransitionAt:  now,
		VerifierOutcome:   "failed",
		CorrectionPresent: sig.CorrectionPresent,
		ValidationResult:  sig.Validation.String(),
	}

	if err := e.commit(record, "", Pending); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"id":      record.ID,
		"subject": subject,
	}).Info("Escalation opened")

	return record, nil
}

// advance steps the record through every transition the signals justify.
// The corrective_action_applied to awaiting_validation step is automatic,
// so a single poll may fire more than one transition; each one appends its
// own log record.
func (e *Engine) advance(record *Record, sig Signals) (*Record, error) {
	now := e.now().UTC()

	state := record.CurrentState()
	for {
		next, ok := NextState(state, sig, now.Sub(record.CreatedAt), e.sla)
		if !ok {
			break
		}

		from := state
		state = next

		record.State = state.String()
		record.LastTransitionAt = now
		record.CorrectionPresent = sig.CorrectionPresent
		record.ValidationResult = sig.Validation.String()

		if err := e.commit(record, from.String(), state); err != nil {
			return nil, err
		}

		e.logger.WithFields(logrus.Fields{
			"id":      record.ID,
			"subject": record.Subject,
			"from":    from.String(),
			"to":      state.String(),
		}).Info("Escalation transitioned")
	}

	return record, nil
}

// commit appends the immutable log record and atomically replaces the
// current-state record.
func (e *Engine) commit(record *Record, from string, to State) error {
	log := &logRecord{
		Timestamp: record.LastTransitionAt,
		ID:        record.ID,
		Subject:   record.Subject,
		From:      from,
		To:        to.String(),
	}

	logBuf, err := log.marshal()
	if err != nil {
		return err
	}
	if err := e.db.Append(LogKey, logBuf); err != nil {
		return err
	}

	buf, err := record.Marshal()
	if err != nil {
		return err
	}
	if err := e.db.Set(stateKey(record.Subject), buf); err != nil {
		e.logger.WithFields(logrus.Fields{
			"id":      record.ID,
			"subject": record.Subject,
			"error":   err,
		}).Error("Escalation state not durable, operator intervention required")
		return err
	}

	return e.updateMarker()
}

// updateMarker refreshes the idempotent audit-summary block with the
// current open escalations.
func (e *Engine) updateMarker() error {
	open, err := e.OpenEscalations()
	if err != nil {
		return err
	}

	if len(open) == 0 {
		return e.doc.UpsertBlock(MarkerName, "no open escalations")
	}

	lines := make([]string, 0, len(open))
	for _, r := range open {
		lines = append(lines, fmt.Sprintf("- %s: %s (since %s)", r.Subject, r.State, r.CreatedAt.Format(time.RFC3339)))
	}
	return e.doc.UpsertBlock(MarkerName, strings.Join(lines, "\n"))
}

func stateKey(subject string) string {
	return stateKeyPrefix + subject
}
