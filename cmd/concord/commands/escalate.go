package commands

import (
	"fmt"

	"github.com/concordnetworks/concord/src/escalation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewEscalateCmd returns the command that polls the escalation lifecycle.
func NewEscalateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "escalate",
		Short:   "Evaluate the escalation lifecycle against the current signals",
		PreRunE: loadConfig,
		RunE:    runEscalate,
	}

	cmd.Flags().String("subject", "coldstore", "Subject the signals apply to")
	cmd.Flags().Bool("verifier-failed", false, "Latest verification run failed")
	cmd.Flags().Bool("correction", false, "A correction artifact is present")
	cmd.Flags().String("validation", "none", "Validation result: none, success or failure")
	cmd.Flags().Duration("escalation-sla", _config.EscalationSLA, "How long an escalation may sit pending")

	return cmd
}

func runEscalate(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	subject, err := cmd.Flags().GetString("subject")
	if err != nil {
		return err
	}
	verifierFailed, err := cmd.Flags().GetBool("verifier-failed")
	if err != nil {
		return err
	}
	correction, err := cmd.Flags().GetBool("correction")
	if err != nil {
		return err
	}
	validation, err := cmd.Flags().GetString("validation")
	if err != nil {
		return err
	}

	var result escalation.ValidationResult
	switch validation {
	case "none":
		result = escalation.ValidationNone
	case "success":
		result = escalation.ValidationSuccess
	case "failure":
		result = escalation.ValidationFailure
	default:
		return fmt.Errorf("unknown validation result %q", validation)
	}

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	engine := escalation.NewEngine(db, openAudit(db), _config.EscalationSLA, logger)

	record, err := engine.Poll(subject, escalation.Signals{
		VerifierFailed:    verifierFailed,
		CorrectionPresent: correction,
		Validation:        result,
	})
	if err != nil {
		logger.WithField("error", err).Error("Escalation poll failed")
		return err
	}

	if record == nil {
		logger.WithField("subject", subject).Info("Nothing to escalate")
		return nil
	}

	logger.WithFields(logrus.Fields{
		"id":      record.ID,
		"subject": record.Subject,
		"state":   record.State,
	}).Info("Escalation evaluated")

	return nil
}
