package commands

import (
	"errors"
	"fmt"

	"github.com/concordnetworks/concord/src/audit"
	"github.com/concordnetworks/concord/src/config"
	"github.com/concordnetworks/concord/src/peers"
	"github.com/concordnetworks/concord/src/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for concord.
var RootCmd = &cobra.Command{
	Use:   "concord",
	Short: "federated trust and integrity engine",
	Long: `concord - federated trust and integrity engine

Every subcommand runs one engine to completion and exits:

  0  success, or nothing to do
  1  fatal input or I/O error
  2  policy gate failure (weighted agreement below the critical threshold)`,
	TraverseChildren: true,
	SilenceUsage:     true,
}

func init() {
	RootCmd.PersistentFlags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	RootCmd.PersistentFlags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	RootCmd.PersistentFlags().String("log-dir", _config.LogDir, "Directory for info/error log files")
	RootCmd.PersistentFlags().String("backend", _config.Backend, "Store backend: file, badger or inmem")

	RootCmd.AddCommand(
		NewReputationCmd(),
		NewConsensusCmd(),
		NewDriftCmd(),
		NewMirrorCmd(),
		NewSnapshotCmd(),
		NewVerifyCmd(),
		NewBridgeCmd(),
		NewEscalateCmd(),
		NewDecideCmd(),
		NewVersionCmd(),
	)
}

// PolicyError marks a run that completed but failed a policy gate. The
// process exits with code 2 instead of 1 so callers can tell a gate
// failure from a broken run.
type PolicyError struct {
	Msg string
}

func (e *PolicyError) Error() string {
	return e.Msg
}

// ExitCode maps a command error to the documented exit-code contract.
func ExitCode(err error) int {
	var p *PolicyError
	if errors.As(err, &p) {
		return 2
	}
	return 1
}

// loadConfig binds the command's flags and the optional config file into
// the global config. It is the PreRunE of every subcommand.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for a config file in [datadir]/concord.toml (.json, .yaml also
	// work)
	viper.SetConfigName("concord")
	viper.AddConfigPath(_config.DataDir)

	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from the config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	_config.SetDataDir(_config.DataDir)

	return nil
}

// openStore instantiates the configured store backend.
func openStore() (store.Store, error) {
	logger := _config.Logger()

	switch _config.Backend {
	case "inmem":
		return store.NewInmemStore(), nil
	case "badger":
		return store.NewBadgerStore(_config.BadgerDir, nil, logger)
	case "file":
		return store.NewFileStore(_config.StoreDir, nil, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", _config.Backend)
	}
}

// openAudit builds the shared audit document on top of the store.
func openAudit(db store.Store) *audit.Document {
	return audit.NewDocument(db, _config.Logger())
}

// loadPeerSet reads the configured peer registry file.
func loadPeerSet() (*peers.PeerSet, error) {
	jps := peers.NewJSONPeerSet(_config.RegistryFile, _config.Logger())
	return jps.PeerSet()
}
