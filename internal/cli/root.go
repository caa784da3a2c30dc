// Package cli implements the grove command-line interface. Each invocation
// opens the forest, performs one operation and closes it again, so the data
// directory lock is held only for the duration of a command.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/grove/internal/paths"
	"github.com/mesh-intelligence/grove/pkg/grove"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

var flags rootFlags

// session is the per-invocation state prepared by PersistentPreRunE.
var session struct {
	configDir string
	config    *viper.Viper
	logger    *logrus.Logger
}

// errInvalidArgument marks malformed command-line input.
var errInvalidArgument = errors.New("invalid argument")

// NewRootCmd creates the top-level "grove" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grove",
		Short: "A persisted forest of named nodes",
		Long: "Grove keeps an outline of named nodes on disk and edits its structure:\n" +
			"add, rename, clone, move, delete a subtree, or delete a node and promote its children.",
		Version:           grove.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupSession,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: ./.grove or the platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: ./.grove-db)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug events to stderr")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errInvalidArgument, err)
	})

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newAddCmd(),
		newRenameCmd(),
		newDeleteCmd(),
		newFlattenCmd(),
		newCloneCmd(),
		newDuplicateCmd(),
		newMoveCmd(),
		newChildrenCmd(),
		newSubtreeCmd(),
		newShowCmd(),
		newTreeCmd(),
		newCheckCmd(),
		newStatsCmd(),
	)
	return root
}

// Execute runs the root command against the process arguments and exits
// with the resulting code.
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the command line args and returns the exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "grove:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps storage and integrity failures to exitSysError and
// everything else (missing nodes, cycles, bad input) to exitUserError.
func exitCode(err error) int {
	for _, sys := range []error{
		types.ErrPersistence,
		types.ErrStructural,
		types.ErrDanglingParent,
		types.ErrLocked,
		types.ErrClosed,
	} {
		if errors.Is(err, sys) {
			return exitSysError
		}
	}
	return exitUserError
}

// setupSession builds the logger and loads config.yaml.
func setupSession(cmd *cobra.Command, args []string) error {
	session.logger = logrus.New()
	session.logger.SetOutput(cmd.ErrOrStderr())
	session.logger.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	session.logger.SetLevel(logrus.WarnLevel)
	if flags.verbose {
		session.logger.SetLevel(logrus.DebugLevel)
	}

	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	session.configDir = configDir
	session.config = cfg
	session.logger.WithFields(logrus.Fields{
		"config_dir": configDir,
		"backend":    cfg.GetString(cfgKeyBackend),
	}).Debug("config loaded")
	return nil
}

// storageConfig resolves the backend and data directory for this invocation.
func storageConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(flags.dataDir, session.config.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	return types.Config{
		Backend: session.config.GetString(cfgKeyBackend),
		DataDir: dataDir,
	}, nil
}

// openForest opens the configured forest. The caller must Close it.
func openForest() (types.Forest, error) {
	cfg, err := storageConfig()
	if err != nil {
		return nil, err
	}
	f, err := grove.Open(cfg, grove.WithLogger(session.logger))
	if err != nil {
		return nil, fmt.Errorf("open forest: %w", err)
	}
	return f, nil
}

// withForest adapts a command body that needs an open forest into a RunE.
func withForest(run func(cmd *cobra.Command, f types.Forest, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		f, err := openForest()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close forest: %w", cerr))
			}
		}()
		return run(cmd, f, args)
	}
}
