package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/concordnetworks/concord/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames and directories under the datadir.
const (
	// DefaultRegistryFile is the default name of the peer registry file.
	DefaultRegistryFile = "peers.json"

	// DefaultStoreDir is the default name of the folder containing the
	// file-backed store.
	DefaultStoreDir = "store"

	// DefaultBadgerDir is the default name of the folder containing the
	// Badger database.
	DefaultBadgerDir = "badger_db"

	// DefaultMirrorDir is the default name of the folder receiving anchor
	// mirrors.
	DefaultMirrorDir = "mirrors"

	// DefaultArchiveDir is the default name of the folder receiving
	// snapshot archives.
	DefaultArchiveDir = "archives"

	// DefaultAnchorFile is the default name of the canonical anchor file.
	DefaultAnchorFile = "anchor.json"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultBackend            = "file"
	DefaultFetchTimeout       = 10 * time.Second
	DefaultVerifiedThreshold  = 80.0
	DefaultCriticalThreshold  = 90.0
	DefaultRetentionLimit     = 10
	DefaultEscalationSLA      = 24 * time.Hour
	DefaultSampleWindow       = 10
	DefaultMaxConcurrentFetch = 4
)

// Config contains all the configuration properties of a concord run.
type Config struct {
	// DataDir is the top-level directory containing concord configuration
	// and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogDir, when set, adds a file hook that splits info and error
	// streams into separate files in that directory.
	LogDir string `mapstructure:"log-dir"`

	// Backend selects the store implementation: file, badger or inmem.
	Backend string `mapstructure:"backend"`

	// RegistryFile is the path of the peer registry. Relative paths are
	// resolved against the datadir.
	RegistryFile string `mapstructure:"registry"`

	// AnchorFile is the path of the canonical anchor file mirrored by the
	// anchor engine.
	AnchorFile string `mapstructure:"anchor"`

	// StoreDir is the directory backing the file store.
	StoreDir string `mapstructure:"store-dir"`

	// BadgerDir is the directory containing Badger database files.
	BadgerDir string `mapstructure:"badger-dir"`

	// MirrorDir is the directory receiving anchor mirrors.
	MirrorDir string `mapstructure:"mirror-dir"`

	// ArchiveDir is the directory receiving snapshot archives.
	ArchiveDir string `mapstructure:"archive-dir"`

	// FetchTimeout bounds every peer endpoint fetch.
	FetchTimeout time.Duration `mapstructure:"fetch-timeout"`

	// MaxConcurrentFetches bounds the per-peer fetch worker pool.
	MaxConcurrentFetches int `mapstructure:"max-fetches"`

	// SampleWindow is how many recent drift samples feed a peer's score.
	SampleWindow int `mapstructure:"sample-window"`

	// VerifiedThreshold is the weighted agreement percentage at or above
	// which the consensus marker is written.
	VerifiedThreshold float64 `mapstructure:"verified-threshold"`

	// CriticalThreshold is the weighted agreement percentage below which
	// drift is critical.
	CriticalThreshold float64 `mapstructure:"critical-threshold"`

	// RetentionLimit is how many snapshot archives are retained.
	RetentionLimit int `mapstructure:"retention-limit"`

	// EscalationSLA is how long an escalation may sit pending before it is
	// forced in progress.
	EscalationSLA time.Duration `mapstructure:"escalation-sla"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:              DefaultDataDir(),
		LogLevel:             DefaultLogLevel,
		Backend:              DefaultBackend,
		RegistryFile:         DefaultRegistryFile,
		AnchorFile:           DefaultAnchorFile,
		StoreDir:             DefaultStoreDir,
		BadgerDir:            DefaultBadgerDir,
		MirrorDir:            DefaultMirrorDir,
		ArchiveDir:           DefaultArchiveDir,
		FetchTimeout:         DefaultFetchTimeout,
		MaxConcurrentFetches: DefaultMaxConcurrentFetch,
		SampleWindow:         DefaultSampleWindow,
		VerifiedThreshold:    DefaultVerifiedThreshold,
		CriticalThreshold:    DefaultCriticalThreshold,
		RetentionLimit:       DefaultRetentionLimit,
		EscalationSLA:        DefaultEscalationSLA,
	}

	config.SetDataDir(config.DataDir)

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level concord directory and resolves every
// relative path against it. Paths the user already set to something
// absolute are left alone.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir

	resolve := func(path, fallback string) string {
		if path == "" {
			path = fallback
		}
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(dataDir, path)
	}

	c.RegistryFile = resolve(c.RegistryFile, DefaultRegistryFile)
	c.AnchorFile = resolve(c.AnchorFile, DefaultAnchorFile)
	c.StoreDir = resolve(c.StoreDir, DefaultStoreDir)
	c.BadgerDir = resolve(c.BadgerDir, DefaultBadgerDir)
	c.MirrorDir = resolve(c.MirrorDir, DefaultMirrorDir)
	c.ArchiveDir = resolve(c.ArchiveDir, DefaultArchiveDir)
}

// Logger returns a formatted logrus Entry, with prefix set to "concord".
// When LogDir is set, info and error streams are additionally written to
// files in that directory.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogDir != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.InfoLevel:  filepath.Join(c.LogDir, "concord_info.log"),
					logrus.ErrorLevel: filepath.Join(c.LogDir, "concord_error.log"),
				},
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "concord")
}

// DefaultDataDir returns the default directory name for top-level concord
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Concord")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Concord")
		} else {
			return filepath.Join(home, ".concord")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
