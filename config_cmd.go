package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Tier budgets in MB. Every cached chunk costs 3 MB.
cache:
  l1_size_mb: 18
  l2_size_mb: 36
  l3_size_mb: 45

# Position update handling
timing:
  # drop updates for the same track closer together than this
  throttle: 100ms
  # do not learn preset switches closer together than this
  debounce: 500ms
  # this many updates within the window count as rapid interaction
  interaction_window: 1s
  rapid_threshold: 10

# Blend acoustic scores (<track>.scores.yaml) into predictions
content:
  enabled: true
  requests_per_second: 20
  burst: 1

library:
  extensions: [".flac", ".wav", ".mp3", ".ogg", ".m4a", ".aiff"]

# Prometheus endpoint for "tiercache watch", e.g. ":9102"
metrics:
  addr: ""
  namespace: "tiercache"

# Learned preset switches survive restarts
predictor:
  persist: true
  # snapshot: "~/.local/share/tiercache/predictor.snap"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the tiercache config file",
	Long:    paragraph(fmt.Sprintf("\n%s the tiercache config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("tiercache config\ntiercache config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("tiercache", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
