package commands

import (
	"github.com/concordnetworks/concord/src/consensus"
	"github.com/concordnetworks/concord/src/fetch"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewConsensusCmd returns the command that runs one weighted consensus
// round.
func NewConsensusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "consensus",
		Short:   "Compute reputation-weighted agreement over peer-reported hashes",
		PreRunE: loadConfig,
		RunE:    runConsensus,
	}

	cmd.Flags().Float64("verified-threshold", _config.VerifiedThreshold, "Agreement pct required for the verified marker")
	cmd.Flags().Int("max-fetches", _config.MaxConcurrentFetches, "Max concurrent peer fetches")
	cmd.Flags().Duration("fetch-timeout", _config.FetchTimeout, "Timeout per peer endpoint fetch")

	return cmd
}

func runConsensus(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	peerSet, err := loadPeerSet()
	if err != nil {
		logger.WithField("error", err).Error("Cannot read peer registry")
		return err
	}

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	consConfig := consensus.DefaultConfig()
	consConfig.VerifiedThreshold = _config.VerifiedThreshold
	consConfig.MaxConcurrentFetches = _config.MaxConcurrentFetches

	fetcher := fetch.NewHTTPFetcher(_config.FetchTimeout, logger)
	engine := consensus.NewEngine(peerSet, fetcher, db, openAudit(db), consConfig, logger)

	report, err := engine.Run()
	if err != nil {
		logger.WithField("error", err).Error("Consensus run failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"agreement_pct": report.WeightedAgreementPct,
	}).Info("Consensus report persisted")

	return nil
}
