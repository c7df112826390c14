package commands

import (
	"github.com/concordnetworks/concord/src/anchor"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewMirrorCmd returns the command that mirrors the canonical anchor and
// extends the integrity chain.
func NewMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mirror",
		Short:   "Mirror the canonical anchor and extend the hash chain",
		PreRunE: loadConfig,
		RunE:    runMirror,
	}

	cmd.Flags().String("anchor", _config.AnchorFile, "Path of the canonical anchor file")
	cmd.Flags().String("mirror-dir", _config.MirrorDir, "Directory receiving anchor mirrors")

	return cmd
}

func runMirror(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	db, err := openStore()
	if err != nil {
		logger.WithField("error", err).Error("Cannot open store")
		return err
	}
	defer db.Close()

	mirror := anchor.NewMirror(_config.AnchorFile, _config.MirrorDir, db, logger)

	entry, err := mirror.Run()
	if err != nil {
		logger.WithField("error", err).Error("Mirror run failed")
		return err
	}

	logger.WithFields(logrus.Fields{
		"file":       entry.File,
		"chain_hash": entry.ChainHash,
	}).Info("Anchor mirrored")

	return nil
}
