package commands

import (
	"github.com/concordnetworks/concord/src/bridge"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewBridgeCmd returns the command that merges the consensus and trust
// federation reports.
func NewBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "bridge",
		Short:   "Merge the consensus report with the trust federation report",
		PreRunE: loadConfig,
		RunE:    runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	b := bridge.NewBridge(db, logger)

	snap, err := b.Run()
	if err != nil {
		logger.WithField("error", err).Error("Bridge run failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"agreement_pct":  snap.WeightedAgreementPct,
		"trust_verified": snap.TrustVerified,
	}).Info("Trust consensus snapshot persisted")

	return nil
}
