package commands

import (
	"github.com/concordnetworks/concord/src/fetch"
	"github.com/concordnetworks/concord/src/reputation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewReputationCmd returns the command that computes the reputation index.
func NewReputationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reputation",
		Short:   "Score every registered peer and persist the reputation report",
		PreRunE: loadConfig,
		RunE:    runReputation,
	}

	cmd.Flags().Int("sample-window", _config.SampleWindow, "Recent drift samples per peer score")
	cmd.Flags().Int("max-fetches", _config.MaxConcurrentFetches, "Max concurrent peer fetches")
	cmd.Flags().Duration("fetch-timeout", _config.FetchTimeout, "Timeout per peer endpoint fetch")

	return cmd
}

func runReputation(cmd *cobra.Command, args []string) error {
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

	repConfig := reputation.DefaultConfig()
	repConfig.SampleWindow = _config.SampleWindow
	repConfig.MaxConcurrentFetches = _config.MaxConcurrentFetches

	fetcher := fetch.NewHTTPFetcher(_config.FetchTimeout, logger)
	engine := reputation.NewEngine(peerSet, fetcher, db, repConfig, logger)

	report, err := engine.Run()
	if err != nil {
		logger.WithField("error", err).Error("Reputation run failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"peers": len(report.Scores),
	}).Info("Reputation report persisted")

	return nil
}
