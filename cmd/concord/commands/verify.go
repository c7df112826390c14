package commands

import (
	"github.com/concordnetworks/concord/src/coldstore"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewVerifyCmd returns the command that verifies cold storage.
func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "verify",
		Short:   "Re-hash retained archives and replay the integrity chain",
		PreRunE: loadConfig,
		RunE:    runVerify,
	}

	cmd.Flags().String("archive-dir", _config.ArchiveDir, "Directory containing snapshot archives")
	cmd.Flags().String("mirror-dir", _config.MirrorDir, "Directory containing anchor mirrors")

	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	verifier := coldstore.NewVerifier(db, _config.ArchiveDir, _config.MirrorDir, openAudit(db), logger)

	results, err := verifier.Run()
	if err != nil {
		logger.WithField("error", err).Error("Verification run failed")
		return err
	}

	summary := coldstore.Summarize(results)
	logger.WithFields(logrus.Fields{
		"total":  summary.Total,
		"passed": summary.Passed,
		"failed": summary.Failed,
	}).Info("Cold storage verification complete")

	// A failed verification is reported through the summary and the audit
	// marker; the exit code stays 0 so scheduled runs keep polling.
	return nil
}
