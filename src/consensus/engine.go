package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/concordnetworks/concord/src/audit"
	"github.com/concordnetworks/concord/src/fetch"
	"github.com/concordnetworks/concord/src/peers"
	"github.com/concordnetworks/concord/src/reputation"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

// ReportKey is the store key under which the consensus report is persisted.
const ReportKey = "consensus_report"

// MarkerName identifies this engine's block in the shared audit document.
const MarkerName = "consensus"

// hashReportPath is the peer endpoint publishing the currently reported
// artifact hashes, one value per category.
const hashReportPath = "/hashes.json"

// Default engine parameters.
const (
	DefaultVerifiedThreshold    = 80.0
	DefaultMaxConcurrentFetches = 4
)

// Config bundles the consensus engine parameters.
type Config struct {
	// VerifiedThreshold is the overall agreement percentage at or above
	// which the "verified" audit marker is written.
	VerifiedThreshold float64

	// CategoryWeights sets the weight of each category in the overall
	// agreement figure. The default weighs every category equally; the
	// aggregation rule is always explicit here, never left to map
	// iteration.
	CategoryWeights map[string]float64

	// MaxConcurrentFetches bounds the per-peer hash-report fetch pool.
	MaxConcurrentFetches int
}

// DefaultConfig returns the default consensus parameters.
func DefaultConfig() Config {
	weights := map[string]float64{}
	for _, c := range Categories {
		weights[c] = 1
	}
	return Config{
		VerifiedThreshold:    DefaultVerifiedThreshold,
		CategoryWeights:      weights,
		MaxConcurrentFetches: DefaultMaxConcurrentFetches,
	}
}

// hashReport is a peer's published per-category hash document.
type hashReport struct {
	Ledger string `json:"ledger"`
	Anchor string `json:"anchor"`
	Bundle string `json:"bundle"`
}

func (h *hashReport) value(category string) string {
	switch category {
	case CategoryLedger:
		return h.Ledger
	case CategoryAnchor:
		return h.Anchor
	case CategoryBundle:
		return h.Bundle
	}
	return ""
}

// Engine computes the weighted consensus over peer-reported hashes.
type Engine struct {
	peerSet *peers.PeerSet
	fetcher fetch.Fetcher
	db      store.Store
	doc     *audit.Document
	config  Config
	logger  *logrus.Entry
}

// NewEngine instantiates a consensus Engine.
func NewEngine(peerSet *peers.PeerSet, fetcher fetch.Fetcher, db store.Store, doc *audit.Document, config Config, logger *logrus.Entry) *Engine {
	return &Engine{
		peerSet: peerSet,
		fetcher: fetcher,
		db:      db,
		doc:     doc,
		config:  config,
		logger:  logger.WithField("prefix", "consensus"),
	}
}

// Run fetches every peer's hash report, tallies each category with
// reputation weights, persists the report, and writes the verified audit
// marker when overall agreement meets the threshold. A peer whose fetch
// fails is removed from the tally, never aborting the run.
func (e *Engine) Run() (*Report, error) {
	weights, err := e.loadWeights()
	if err != nil {
		return nil, err
	}

	votes := e.collectVotes()

	report := &Report{
		Timestamp:  time.Now().UTC(),
		Categories: map[string]*CategoryResult{},
	}

	var weightedSum, weightTotal float64
	for _, category := range Categories {
		majority, pct := Tally(votes[category], weights)
		report.Categories[category] = &CategoryResult{
			Reports:      votes[category],
			Majority:     majority,
			AgreementPct: pct,
		}

		cw := e.config.CategoryWeights[category]
		weightedSum += cw * pct
		weightTotal += cw
	}
	if weightTotal > 0 {
		report.WeightedAgreementPct = weightedSum / weightTotal
	}

	buf, err := report.Marshal()
	if err != nil {
		return nil, err
	}
	if err := e.db.Set(ReportKey, buf); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"weighted_agreement_pct": report.WeightedAgreementPct,
		"threshold":              e.config.VerifiedThreshold,
	}).Info("Consensus report computed")

	if report.WeightedAgreementPct >= e.config.VerifiedThreshold {
		marker := fmt.Sprintf("consensus verified: weighted agreement %.1f%% (threshold %.1f%%)",
			report.WeightedAgreementPct, e.config.VerifiedThreshold)
		if err := e.doc.UpsertBlock(MarkerName, marker); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// loadWeights reads the latest reputation report. A missing report resolves
// to zero weight for everyone, which yields empty majorities rather than an
// error.
func (e *Engine) loadWeights() (map[string]float64, error) {
	buf, err := e.db.Get(reputation.ReportKey)
	if err == store.ErrKeyNotFound {
		e.logger.Warn("No reputation report, all weights zero")
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}

	repReport := new(reputation.Report)
	if err := repReport.Unmarshal(buf); err != nil {
		return nil, err
	}

	return repReport.Weights(), nil
}

// collectVotes fetches every peer's hash report through a bounded pool and
// groups the values per category.
func (e *Engine) collectVotes() map[string]map[string]string {
	type peerVote struct {
		moniker string
		report  *hashReport
	}

	results := make([]*peerVote, e.peerSet.Len())

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.config.MaxConcurrentFetches)

	for i, peer := range e.peerSet.Peers {
		wg.Add(1)
		go func(i int, peer *peers.Peer) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var hr hashReport
			if ok := e.fetcher.FetchJSON(peer.NetAddr+hashReportPath, &hr); !ok {
				e.logger.WithField("peer", peer.Moniker).Warn("Hash report unreachable, peer dropped from tally")
				return
			}
			results[i] = &peerVote{moniker: peer.Moniker, report: &hr}
		}(i, peer)
	}
	wg.Wait()

	votes := map[string]map[string]string{}
	for _, category := range Categories {
		votes[category] = map[string]string{}
	}

	for _, pv := range results {
		if pv == nil {
			continue
		}
		for _, category := range Categories {
			if v := pv.report.value(category); v != "" {
				votes[category][pv.moniker] = v
			}
		}
	}

	return votes
}
