package commands

import (
	"fmt"

	"github.com/concordnetworks/concord/src/anchor"
	"github.com/concordnetworks/concord/src/drift"
	"github.com/concordnetworks/concord/src/snapshot"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewDriftCmd returns the command that classifies the latest consensus
// result.
func NewDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drift",
		Short:   "Classify the latest consensus result and log drift",
		PreRunE: loadConfig,
		RunE:    runDrift,
	}

	cmd.Flags().Float64("critical-threshold", _config.CriticalThreshold, "Agreement pct below which drift is critical")
	cmd.Flags().Bool("repair", false, "Trigger the configured repair actions on drift")

	return cmd
}

func runDrift(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	repair, err := cmd.Flags().GetBool("repair")
	if err != nil {
		return err
	}

	driftConfig := drift.DefaultConfig()
	driftConfig.CriticalThreshold = _config.CriticalThreshold
	driftConfig.Repair = repair

	detector := drift.NewDetector(db, openAudit(db), repairActions(db), driftConfig, logger)

	result, err := detector.Run()
	if err != nil {
		logger.WithField("error", err).Error("Drift run failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"outcome":       result.Outcome.String(),
		"agreement_pct": result.AgreementPct,
		"repairs":       len(result.Repairs),
	}).Info("Drift evaluated")

	if result.Outcome == drift.OutcomeCritical {
		return &PolicyError{Msg: fmt.Sprintf(
			"critical drift: agreement %.2f%% below threshold %.2f%%",
			result.AgreementPct, _config.CriticalThreshold)}
	}

	return nil
}

// repairActions builds the rebuild-and-resync actions the detector may
// trigger: re-mirroring the anchor and re-archiving the ledger artifacts.
func repairActions(db store.Store) []drift.RepairAction {
	logger := _config.Logger()

	return []drift.RepairAction{
		drift.NewAction("anchor_resync", func() error {
			_, err := anchor.NewMirror(_config.AnchorFile, _config.MirrorDir, db, logger).Run()
			return err
		}),
		drift.NewAction("snapshot_rebuild", func() error {
			sources := []string{_config.AnchorFile, _config.RegistryFile}
			_, err := snapshot.NewSnapshotter(sources, _config.ArchiveDir, db, _config.RetentionLimit, logger).Run()
			return err
		}),
	}
}
