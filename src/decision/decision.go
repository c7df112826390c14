// Package decision synthesizes all upstream signals into the final access
// decision.
package decision

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// Final is the enumerated access decision.
type Final string

const (
	// Allow grants full access.
	Allow Final = "allow"
	// Restricted is the default fallback while anything is off-nominal.
	Restricted Final = "restricted"
	// Blocked denies access.
	Blocked Final = "blocked"
)

// Governance risk levels, supplied by an external governance process.
const (
	RiskGreen  = "green"
	RiskYellow = "yellow"
	RiskRed    = "red"
)

// Inputs is the full snapshot the decision is computed from. It is
// persisted alongside the decision so every verdict is explainable after
// the fact.
type Inputs struct {
	CoreOK              bool   `json:"mvcrs_core_ok"`
	EscalationOpen      bool   `json:"escalation_open"`
	LifecycleState      string `json:"lifecycle_state"`
	GovernanceRiskLevel string `json:"governance_risk_level"`
}

// Decision is the persisted verdict.
type Decision struct {
	Final      Final     `json:"final_decision"`
	Inputs     Inputs    `json:"inputs"`
	ComputedAt time.Time `json:"computed_at"`
}

// Marshal encodes the decision in canonical JSON.
func (d *Decision) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(d); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON decision.
func (d *Decision) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(d)
}

// Evaluate computes the final decision from the inputs, in strict priority
// order:
//
//  1. blocked if governance risk is red and the core is not ok
//  2. allow if the core is ok, no escalation is open, and risk is green
//  3. restricted otherwise
func Evaluate(in Inputs) Final {
	if in.GovernanceRiskLevel == RiskRed && !in.CoreOK {
		return Blocked
	}
	if in.CoreOK && !in.EscalationOpen && in.GovernanceRiskLevel == RiskGreen {
		return Allow
	}
	return Restricted
}
