package commands

import (
	"github.com/concordnetworks/concord/src/coldstore"
	"github.com/concordnetworks/concord/src/decision"
	"github.com/concordnetworks/concord/src/escalation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewDecideCmd returns the command that computes the integration decision.
func NewDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "decide",
		Short:   "Compute the integration decision from all current signals",
		PreRunE: loadConfig,
		RunE:    runDecide,
	}

	cmd.Flags().Bool("correction", false, "A correction artifact is present")

	return cmd
}

func runDecide(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	correction, err := cmd.Flags().GetBool("correction")
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	doc := openAudit(db)

	verifier := coldstore.NewVerifier(db, _config.ArchiveDir, _config.MirrorDir, doc, logger)
	results, err := verifier.Run()
	if err != nil {
		logger.WithField("error", err).Error("Verification run failed")
		return err
	}
	summary := coldstore.Summarize(results)

	escalations := escalation.NewEngine(db, doc, _config.EscalationSLA, logger)
	open, err := escalations.OpenEscalations()
	if err != nil {
		logger.WithField("error", err).Error("Cannot read escalations")
		return err
	}

	lifecycleState := ""
	if len(open) > 0 {
		lifecycleState = open[0].State
	}

	inputs := decision.Inputs{
		CoreOK:              decision.DeriveCoreOK(summary, correction, len(open) > 0),
		EscalationOpen:      len(open) > 0,
		LifecycleState:      lifecycleState,
		GovernanceRiskLevel: decision.LoadGovernanceRisk(db, logger),
	}

	orchestrator := decision.NewOrchestrator(db, doc, logger)

	d, err := orchestrator.Run(inputs)
	if err != nil {
		logger.WithField("error", err).Error("Decision run failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"final":           d.Final,
		"core_ok":         inputs.CoreOK,
		"escalation_open": inputs.EscalationOpen,
		"risk":            inputs.GovernanceRiskLevel,
	}).Info("Integration decision persisted")

	return nil
}
