package reputation

import (
	"sort"
	"sync"
	"time"

	"github.com/concordnetworks/concord/src/common"
	"github.com/concordnetworks/concord/src/fetch"
	"github.com/concordnetworks/concord/src/peers"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

// ReportKey is the store key under which the reputation report is persisted.
const ReportKey = "reputation_report"

// Peer endpoint conventions. Each peer publishes these documents under its
// NetAddr.
const (
	driftLogPath = "/drift.json"
	ethicsPath   = "/ethics.json"
	trustPath    = "/trust.json"
)

// Default scoring parameters.
const (
	DefaultSampleWindow         = 10
	DefaultAcceptableAgreement  = 90.0
	DefaultLowAgreementPenalty  = 2.0
	DefaultEthicsMinimum        = 0.8
	DefaultEthicsBonus          = 5.0
	DefaultTrustBonus           = 5.0
	DefaultMaxConcurrentFetches = 4
)

// Config bundles the scoring parameters of the reputation engine.
type Config struct {
	// SampleWindow is how many of the most recent drift samples feed the
	// recency-weighted average.
	SampleWindow int

	// AcceptableAgreement is the floor below which a sample counts towards
	// the low-agreement penalty.
	AcceptableAgreement float64

	// LowAgreementPenalty is deducted once per sample below the floor.
	LowAgreementPenalty float64

	// EthicsMinimum is the fairness-signal threshold for the ethics bonus.
	EthicsMinimum float64

	// EthicsBonus is added when the peer's fairness signal meets the
	// minimum.
	EthicsBonus float64

	// TrustBonus is added when the peer's trust status is verified.
	TrustBonus float64

	// MaxConcurrentFetches bounds the worker pool used for per-peer
	// fetches. Fetches are independent; the pool exists for latency only.
	MaxConcurrentFetches int
}

// DefaultConfig returns the default scoring parameters.
func DefaultConfig() Config {
	return Config{
		SampleWindow:         DefaultSampleWindow,
		AcceptableAgreement:  DefaultAcceptableAgreement,
		LowAgreementPenalty:  DefaultLowAgreementPenalty,
		EthicsMinimum:        DefaultEthicsMinimum,
		EthicsBonus:          DefaultEthicsBonus,
		TrustBonus:           DefaultTrustBonus,
		MaxConcurrentFetches: DefaultMaxConcurrentFetches,
	}
}

// ethicsSignal is the externally reported fairness document.
type ethicsSignal struct {
	FairnessScore float64 `json:"fairness_score"`
}

// trustSignal is the externally reported trust-status document.
type trustSignal struct {
	Verified bool `json:"verified"`
}

// Engine computes the reputation index for a peer-set.
type Engine struct {
	peerSet *peers.PeerSet
	fetcher fetch.Fetcher
	db      store.Store
	config  Config
	logger  *logrus.Entry
}

// NewEngine instantiates a reputation Engine.
func NewEngine(peerSet *peers.PeerSet, fetcher fetch.Fetcher, db store.Store, config Config, logger *logrus.Entry) *Engine {
	return &Engine{
		peerSet: peerSet,
		fetcher: fetcher,
		db:      db,
		config:  config,
		logger:  logger.WithField("prefix", "reputation"),
	}
}

// Run scores every peer in the set and persists the report. A peer whose
// drift history is unreachable is scored 0 and marked degraded; it never
// fails the run.
func (e *Engine) Run() (*Report, error) {
	records := make([]*Record, e.peerSet.Len())

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.config.MaxConcurrentFetches)

	for i, peer := range e.peerSet.Peers {
		wg.Add(1)
		go func(i int, peer *peers.Peer) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			records[i] = e.scorePeer(peer)
		}(i, peer)
	}
	wg.Wait()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].Moniker < records[j].Moniker
	})

	report := &Report{
		Timestamp: time.Now().UTC(),
		Scores:    records,
	}

	buf, err := report.Marshal()
	if err != nil {
		return nil, err
	}
	if err := e.db.Set(ReportKey, buf); err != nil {
		return nil, err
	}

	e.logger.WithField("peers", len(records)).Info("Reputation report computed")

	return report, nil
}

// scorePeer computes one peer's record from its published documents.
func (e *Engine) scorePeer(peer *peers.Peer) *Record {
	record := &Record{
		Moniker: peer.Moniker,
		NetAddr: peer.NetAddr,
	}

	var samples []DriftSample
	if ok := e.fetcher.FetchJSON(peer.NetAddr+driftLogPath, &samples); !ok {
		e.logger.WithField("peer", peer.Moniker).Warn("Drift history unreachable, peer degraded")
		record.Degraded = true
		record.Score = 0
		return record
	}

	score := e.recencyWeightedAverage(samples)
	score -= e.lowAgreementPenalty(samples)

	var ethics ethicsSignal
	if ok := e.fetcher.FetchJSON(peer.NetAddr+ethicsPath, &ethics); ok {
		if ethics.FairnessScore >= e.config.EthicsMinimum {
			score += e.config.EthicsBonus
		}
	}

	var trust trustSignal
	if ok := e.fetcher.FetchJSON(peer.NetAddr+trustPath, &trust); ok {
		if trust.Verified {
			score += e.config.TrustBonus
		}
	}

	record.Score = common.Clamp(score, 0, 100)

	e.logger.WithFields(logrus.Fields{
		"peer":    peer.Moniker,
		"score":   record.Score,
		"samples": len(samples),
		"median":  common.Median(agreements(samples)),
	}).Debug("Peer scored")

	return record
}

// recencyWeightedAverage averages the last SampleWindow samples with linear
// weights, the most recent sample weighing the most.
func (e *Engine) recencyWeightedAverage(samples []DriftSample) float64 {
	window := samples
	if len(window) > e.config.SampleWindow {
		window = window[len(window)-e.config.SampleWindow:]
	}
	if len(window) == 0 {
		return 0
	}

	var sum, weightSum float64
	for i, s := range window {
		w := float64(i + 1)
		sum += w * s.AgreementPct
		weightSum += w
	}

	return sum / weightSum
}

// lowAgreementPenalty counts windowed samples below the acceptable floor.
func (e *Engine) lowAgreementPenalty(samples []DriftSample) float64 {
	window := samples
	if len(window) > e.config.SampleWindow {
		window = window[len(window)-e.config.SampleWindow:]
	}

	var below int
	for _, s := range window {
		if s.AgreementPct < e.config.AcceptableAgreement {
			below++
		}
	}

	return float64(below) * e.config.LowAgreementPenalty
}

func agreements(samples []DriftSample) []float64 {
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.AgreementPct
	}
	return vals
}
