package commands

import (
	"github.com/concordnetworks/concord/src/snapshot"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSnapshotCmd returns the command that archives the ledger artifacts.
func NewSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Short:   "Archive the ledger artifacts and prune beyond the retention limit",
		PreRunE: loadConfig,
		RunE:    runSnapshot,
	}

	cmd.Flags().StringSlice("source", nil, "Extra files to include in the archive")
	cmd.Flags().String("archive-dir", _config.ArchiveDir, "Directory receiving snapshot archives")
	cmd.Flags().Int("retention-limit", _config.RetentionLimit, "How many archives to retain")

	return cmd
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	extra, err := cmd.Flags().GetStringSlice("source")
	if err != nil {
		return err
	}

	// The anchor file and registry are always archived; extra sources are
	// additive.
	sources := append([]string{_config.AnchorFile, _config.RegistryFile}, extra...)

	snapshotter := snapshot.NewSnapshotter(sources, _config.ArchiveDir, db, _config.RetentionLimit, logger)

	record, err := snapshotter.Run()
	if err != nil {
		logger.WithField("error", err).Error("Snapshot run failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"archive": record.Archive,
		"sha256":  record.SHA256,
	}).Info("Snapshot archived")

	return nil
}
