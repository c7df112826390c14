package escalation

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"
)

// Record is the persisted form of an escalation. At most one non-terminal
// record exists per subject at any time.
type Record struct {
	ID                string    `json:"id"`
	Subject           string    `json:"subject"`
	State             string    `json:"state"`
	CreatedAt         time.Time `json:"created_at"`
	LastTransitionAt  time.Time `json:"last_transition_at"`
	VerifierOutcome   string    `json:"verifier_outcome"`
	CorrectionPresent bool      `json:"correction_artifact_present"`
	ValidationResult  string    `json:"validation_result"`
}

// CurrentState parses the record's state name back into a State.
func (r *Record) CurrentState() State {
	for s := Pending; s <= Rejected; s++ {
		if s.String() == r.State {
			return s
		}
	}
	return Pending
}

// Marshal encodes the record in canonical JSON.
func (r *Record) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON record.
func (r *Record) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}

// logRecord is one immutable line of the escalation log, appended on every
// transition.
type logRecord struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	To        string    `json:"to"`
}

func (l *logRecord) marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(l); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
