package bridge

import (
	"testing"

	"github.com/concordnetworks/concord/src/common"
	"github.com/concordnetworks/concord/src/consensus"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

func testBridge(t *testing.T) (*Bridge, *store.InmemStore) {
	db := store.NewInmemStore()
	logger := common.NewTestEntry(t, logrus.DebugLevel)
	return NewBridge(db, logger), db
}

func seedConsensus(t *testing.T, db store.Store) {
	report := &consensus.Report{
		WeightedAgreementPct: 95,
		Categories: map[string]*consensus.CategoryResult{
			consensus.CategoryLedger: {Majority: "X", AgreementPct: 90},
			consensus.CategoryAnchor: {Majority: "X", AgreementPct: 100},
		},
	}
	buf, err := report.Marshal()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := db.Set(consensus.ReportKey, buf); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestRunMergesBothInputs(t *testing.T) {
	b, db := testBridge(t)
	seedConsensus(t, db)

	if err := db.Set(TrustReportKey, []byte(`{"verified":true,"source":"federation-ca"}`)); err != nil {
		t.Fatalf("err: %v", err)
	}

	snapshot, err := b.Run()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if snapshot.WeightedAgreementPct != 95 {
		t.Fatalf("agreement: %v", snapshot.WeightedAgreementPct)
	}
	if snapshot.Categories[consensus.CategoryLedger] != 90 {
		t.Fatalf("ledger agreement: %v", snapshot.Categories[consensus.CategoryLedger])
	}
	if !snapshot.TrustVerified || snapshot.TrustSource != "federation-ca" {
		t.Fatalf("trust: %+v", snapshot)
	}

	if !db.Has(SnapshotKey) {
		t.Fatalf("snapshot not persisted")
	}
}

func TestRunMissingInputsNeutral(t *testing.T) {
	b, _ := testBridge(t)

	snapshot, err := b.Run()
	if err != nil {
		t.Fatalf("bridge failed on missing inputs: %v", err)
	}

	if snapshot.WeightedAgreementPct != 0 {
		t.Fatalf("agreement: %v, want 0", snapshot.WeightedAgreementPct)
	}
	if snapshot.TrustVerified {
		t.Fatalf("trust verified without a report")
	}
	if len(snapshot.Categories) != 0 {
		t.Fatalf("categories: %v", snapshot.Categories)
	}
}

func TestRunMalformedTrustReportNeutral(t *testing.T) {
	b, db := testBridge(t)
	seedConsensus(t, db)

	if err := db.Set(TrustReportKey, []byte(`{"verified":"yes"}`)); err != nil {
		t.Fatalf("err: %v", err)
	}

	snapshot, err := b.Run()
	if err != nil {
		t.Fatalf("bridge failed on malformed trust report: %v", err)
	}

	// Consensus side still merged, trust side neutral.
	if snapshot.WeightedAgreementPct != 95 {
		t.Fatalf("agreement: %v", snapshot.WeightedAgreementPct)
	}
	if snapshot.TrustVerified {
		t.Fatalf("malformed report marked trust verified")
	}
}
