package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/concordnetworks/concord/src/audit"
	"github.com/concordnetworks/concord/src/common"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

func testOrchestrator(t *testing.T) (*Orchestrator, *store.InmemStore, *audit.Document) {
	db := store.NewInmemStore()
	logger := common.NewTestEntry(t, logrus.DebugLevel)
	doc := audit.NewDocument(db, logger)
	o := NewOrchestrator(db, doc, logger)
	return o, db, doc
}

func TestRunPersistsDecisionWithInputs(t *testing.T) {
	o, _, doc := testOrchestrator(t)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return at }

	in := Inputs{
		CoreOK:              true,
		LifecycleState:      "resolved",
		GovernanceRiskLevel: RiskGreen,
	}

	d, err := o.Run(in)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if d.Final != Allow {
		t.Fatalf("final: %s, want allow", d.Final)
	}
	if !d.ComputedAt.Equal(at) {
		t.Fatalf("computed at: %s, want %s", d.ComputedAt, at)
	}

	loaded, err := o.LoadDecision()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if loaded.Final != Allow || loaded.Inputs != in {
		t.Fatalf("persisted decision lost its inputs: %+v", loaded)
	}

	if !doc.HasBlock(MarkerName) {
		t.Fatalf("audit marker missing")
	}
	content, ok := doc.BlockContent(MarkerName)
	if !ok {
		t.Fatalf("marker block unreadable")
	}
	if !strings.Contains(content, "allow") {
		t.Fatalf("marker does not carry the decision: %q", content)
	}
}

func TestRunMarkerIdempotent(t *testing.T) {
	o, db, _ := testOrchestrator(t)

	in := Inputs{GovernanceRiskLevel: RiskYellow}
	for i := 0; i < 3; i++ {
		if _, err := o.Run(in); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	buf, err := db.Get(audit.DocumentKey)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if n := strings.Count(string(buf), "concord:decision:begin"); n != 1 {
		t.Fatalf("marker duplicated %d times", n)
	}
}

func TestLoadGovernanceRisk(t *testing.T) {
	_, db, _ := testOrchestrator(t)
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	// Missing record degrades to yellow.
	if level := LoadGovernanceRisk(db, logger); level != RiskYellow {
		t.Fatalf("level: %s, want yellow", level)
	}

	// Malformed record degrades to yellow.
	if err := db.Set(GovernanceRiskKey, []byte("not json")); err != nil {
		t.Fatalf("err: %v", err)
	}
	if level := LoadGovernanceRisk(db, logger); level != RiskYellow {
		t.Fatalf("level: %s, want yellow", level)
	}

	// Unknown level degrades to yellow.
	if err := db.Set(GovernanceRiskKey, []byte(`{"level":"purple"}`)); err != nil {
		t.Fatalf("err: %v", err)
	}
	if level := LoadGovernanceRisk(db, logger); level != RiskYellow {
		t.Fatalf("level: %s, want yellow", level)
	}

	if err := db.Set(GovernanceRiskKey, []byte(`{"level":"red"}`)); err != nil {
		t.Fatalf("err: %v", err)
	}
	if level := LoadGovernanceRisk(db, logger); level != RiskRed {
		t.Fatalf("level: %s, want red", level)
	}
}
