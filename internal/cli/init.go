package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/grove/pkg/grove"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir,omitempty"`
}

func newInitCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize grove configuration and storage",
		Long: "Create the configuration directory with a config.yaml, then create the data\n" +
			"directory and open the storage backend once. An existing config.yaml is kept.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, backend)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "storage backend: jsonl, sqlite or leveldb (default: from config, else jsonl)")
	return cmd
}

func runInit(cmd *cobra.Command, backend string) error {
	cfg, err := storageConfig()
	if err != nil {
		return err
	}

	configPath := filepath.Join(session.configDir, configFileExt)
	_, statErr := os.Stat(configPath)
	configExists := statErr == nil

	if backend != "" && backend != cfg.Backend {
		if configExists {
			return fmt.Errorf("%w: %s already selects backend %q; edit it to switch to %q",
				errInvalidArgument, configPath, cfg.Backend, backend)
		}
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: backend %q: %w", errInvalidArgument, cfg.Backend, err)
	}

	if !configExists {
		if err := os.MkdirAll(session.configDir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := writeConfig(configPath, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}

	f, err := grove.Open(cfg, grove.WithLogger(session.logger))
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Grove initialized successfully")
	if configExists {
		fmt.Fprintln(out, "  config: ", session.configDir, "(existing config.yaml kept)")
	} else {
		fmt.Fprintln(out, "  config: ", session.configDir)
	}
	fmt.Fprintln(out, "  data:   ", cfg.DataDir)
	fmt.Fprintln(out, "  backend:", cfg.Backend)
	return nil
}

// writeConfig writes cfg to path as config.yaml.
func writeConfig(path string, cfg types.Config) error {
	data, err := yaml.Marshal(&configFile{
		Backend: cfg.Backend,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
