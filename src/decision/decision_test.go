package decision

import (
	"reflect"
	"testing"

	"github.com/concordnetworks/concord/src/coldstore"
)

func TestEvaluatePriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		want Final
	}{
		{"red risk with broken core blocks", Inputs{CoreOK: false, GovernanceRiskLevel: RiskRed}, Blocked},
		{"red risk with healthy core restricts", Inputs{CoreOK: true, GovernanceRiskLevel: RiskRed}, Restricted},
		{"all clear allows", Inputs{CoreOK: true, GovernanceRiskLevel: RiskGreen}, Allow},
		{"open escalation restricts", Inputs{CoreOK: true, EscalationOpen: true, GovernanceRiskLevel: RiskGreen}, Restricted},
		{"yellow risk restricts", Inputs{CoreOK: true, GovernanceRiskLevel: RiskYellow}, Restricted},
		{"broken core on green restricts", Inputs{CoreOK: false, GovernanceRiskLevel: RiskGreen}, Restricted},
		{"broken core with escalation on yellow restricts", Inputs{EscalationOpen: true, GovernanceRiskLevel: RiskYellow}, Restricted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.in); got != tt.want {
				t.Fatalf("Evaluate(%+v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveCoreOK(t *testing.T) {
	verified := coldstore.Summary{Total: 4, Passed: 4}
	broken := coldstore.Summary{Total: 4, Passed: 3, Failed: 1}

	if !DeriveCoreOK(verified, false, false) {
		t.Fatalf("fully verified cold storage should be core ok")
	}
	if DeriveCoreOK(broken, false, false) {
		t.Fatalf("failed verification without correction should not be core ok")
	}
	if !DeriveCoreOK(broken, true, false) {
		t.Fatalf("correction with nothing open should be core ok")
	}
	if DeriveCoreOK(broken, true, true) {
		t.Fatalf("open escalation should hold core ok down")
	}
}

func TestDecisionRoundTrip(t *testing.T) {
	d := &Decision{
		Final: Restricted,
		Inputs: Inputs{
			CoreOK:              true,
			EscalationOpen:      true,
			LifecycleState:      "in_progress",
			GovernanceRiskLevel: RiskGreen,
		},
	}

	buf, err := d.Marshal()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	got := new(Decision)
	if err := got.Unmarshal(buf); err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual(d, got) {
		t.Fatalf("decision: %#v, want %#v", got, d)
	}
}
