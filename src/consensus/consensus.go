// Package consensus implements reputation-weighted voting over the artifact
// hashes reported by federation peers.
package consensus

import (
	"bytes"
	"sort"
	"time"

	"github.com/ugorji/go/codec"
)

// Artifact categories over which peers vote. Each category is tallied
// independently.
const (
	CategoryLedger = "ledger"
	CategoryAnchor = "anchor"
	CategoryBundle = "bundle"
)

// Categories lists the voted artifact categories in canonical order.
var Categories = []string{CategoryLedger, CategoryAnchor, CategoryBundle}

// CategoryResult is the outcome of the weighted vote for one artifact
// category. Majority is empty when no reputable peer voted.
type CategoryResult struct {
	Reports      map[string]string `json:"reports"`
	Majority     string            `json:"majority"`
	AgreementPct float64           `json:"agreement_pct"`
}

// Report is the output of one weighted-consensus run.
type Report struct {
	Timestamp            time.Time                  `json:"timestamp"`
	WeightedAgreementPct float64                    `json:"weighted_agreement_pct"`
	Categories           map[string]*CategoryResult `json:"categories"`
}

// Marshal encodes the report in canonical JSON.
func (r *Report) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a canonical JSON report.
func (r *Report) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}

// Tally resolves one category's votes. Each vote carries the voter's
// reputation weight; the majority is the value with the greatest summed
// weight. Ties are broken deterministically in favour of the
// lexicographically smallest value. When the total weight is zero there is
// no majority: the result is ("", 0).
func Tally(votes map[string]string, weights map[string]float64) (string, float64) {
	groups := map[string]float64{}
	var totalWeight float64

	for voter, value := range votes {
		w := weights[voter]
		if w <= 0 {
			continue
		}
		groups[value] += w
		totalWeight += w
	}

	if totalWeight == 0 {
		return "", 0
	}

	values := make([]string, 0, len(groups))
	for v := range groups {
		values = append(values, v)
	}
	sort.Strings(values)

	majority := ""
	var majorityWeight float64
	for _, v := range values {
		if groups[v] > majorityWeight {
			majority = v
			majorityWeight = groups[v]
		}
	}

	return majority, majorityWeight / totalWeight * 100
}
