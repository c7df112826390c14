package escalation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/concordnetworks/concord/src/audit"
	"github.com/concordnetworks/concord/src/common"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

func testEngine(t *testing.T) (*Engine, *store.InmemStore, *audit.Document) {
	db := store.NewInmemStore()
	logger := common.NewTestEntry(t, logrus.DebugLevel)
	doc := audit.NewDocument(db, logger)
	engine := NewEngine(db, doc, DefaultSLA, logger)
	return engine, db, doc
}

// setClock pins the engine's clock to a fixed instant.
func setClock(e *Engine, at time.Time) {
	e.now = func() time.Time { return at }
}

func TestPollNoFailureNoEscalation(t *testing.T) {
	engine, db, _ := testEngine(t)

	record, err := engine.Poll("coldstore", Signals{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record != nil {
		t.Fatalf("escalation opened without a verifier failure: %+v", record)
	}
	if db.Has(LogKey) {
		t.Fatalf("log written without a transition")
	}
}

func TestPollOpensPending(t *testing.T) {
	engine, _, doc := testEngine(t)

	record, err := engine.Poll("coldstore", Signals{VerifierFailed: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != Pending {
		t.Fatalf("state: %s, want pending", record.State)
	}
	if record.ID == "" {
		t.Fatalf("record has no id")
	}

	if !doc.HasBlock(MarkerName) {
		t.Fatalf("audit marker missing")
	}

	// A second failing poll must not open a second escalation.
	again, err := engine.Poll("coldstore", Signals{VerifierFailed: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if again.ID != record.ID {
		t.Fatalf("second escalation opened for the same subject")
	}

	open, err := engine.OpenEscalations()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open escalations: %d, want 1", len(open))
	}
}

func TestFullLifecycleResolved(t *testing.T) {
	engine, db, _ := testEngine(t)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	setClock(engine, start)

	record, err := engine.Poll("coldstore", Signals{VerifierFailed: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != Pending {
		t.Fatalf("state: %s", record.State)
	}

	// Within the SLA nothing moves.
	setClock(engine, start.Add(12*time.Hour))
	record, err = engine.Poll("coldstore", Signals{VerifierFailed: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != Pending {
		t.Fatalf("state: %s, want pending within sla", record.State)
	}

	// SLA expires.
	setClock(engine, start.Add(25*time.Hour))
	record, err = engine.Poll("coldstore", Signals{VerifierFailed: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != InProgress {
		t.Fatalf("state: %s, want in_progress", record.State)
	}

	// Correction detected: corrective_action_applied chains into
	// awaiting_validation in the same poll.
	setClock(engine, start.Add(26*time.Hour))
	record, err = engine.Poll("coldstore", Signals{VerifierFailed: true, CorrectionPresent: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != AwaitingValidation {
		t.Fatalf("state: %s, want awaiting_validation", record.State)
	}

	// Validation succeeds.
	setClock(engine, start.Add(27*time.Hour))
	record, err = engine.Poll("coldstore", Signals{CorrectionPresent: true, Validation: ValidationSuccess})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != Resolved {
		t.Fatalf("state: %s, want resolved", record.State)
	}

	// Every transition left exactly one immutable log line:
	// open, in_progress, corrective, awaiting, resolved.
	buf, err := db.Get(LogKey)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	lines := strings.Count(string(buf), "\n")
	if lines != 5 {
		t.Fatalf("log lines: %d, want 5", lines)
	}

	open, err := engine.OpenEscalations()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("resolved escalation still open")
	}
}

func TestRejectedIsTerminal(t *testing.T) {
	engine, _, _ := testEngine(t)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	setClock(engine, start)

	if _, err := engine.Poll("anchor", Signals{VerifierFailed: true}); err != nil {
		t.Fatalf("err: %v", err)
	}

	setClock(engine, start.Add(25*time.Hour))
	if _, err := engine.Poll("anchor", Signals{VerifierFailed: true, CorrectionPresent: true}); err != nil {
		t.Fatalf("err: %v", err)
	}

	record, err := engine.Poll("anchor", Signals{CorrectionPresent: true, Validation: ValidationFailure})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != Rejected {
		t.Fatalf("state: %s, want rejected", record.State)
	}

	// Polling a terminal escalation with no new failure does nothing.
	record, err = engine.Poll("anchor", Signals{CorrectionPresent: true, Validation: ValidationSuccess})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if record.CurrentState() != Rejected {
		t.Fatalf("terminal record transitioned to %s", record.State)
	}

	// A fresh verifier failure opens a new escalation with a new id.
	fresh, err := engine.Poll("anchor", Signals{VerifierFailed: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if fresh.ID == record.ID {
		t.Fatalf("terminal record reused")
	}
	if fresh.CurrentState() != Pending {
		t.Fatalf("state: %s, want pending", fresh.State)
	}
}

func TestPollRetriesExhaustedReportedNotCrashed(t *testing.T) {
	engine, db, _ := testEngine(t)

	db.FailSets = 1

	_, err := engine.Poll("coldstore", Signals{VerifierFailed: true})
	if !errors.Is(err, store.ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
}

func TestMarkerIdempotent(t *testing.T) {
	engine, db, _ := testEngine(t)

	for i := 0; i < 3; i++ {
		if _, err := engine.Poll("coldstore", Signals{VerifierFailed: true}); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	buf, err := db.Get(audit.DocumentKey)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if n := strings.Count(string(buf), "concord:escalation:begin"); n != 1 {
		t.Fatalf("marker duplicated %d times", n)
	}
}
