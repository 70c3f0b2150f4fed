// Package main provides the entry point for the tiercache CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/auralis/tiercache/internal/config"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	width      uint
	runtimeEnv config.Runtime

	rootCmd = &cobra.Command{
		Use:   "tiercache",
		Short: "Predictive multi-tier chunk cache for adaptive mastering",
		Long: paragraph(
			fmt.Sprintf("\nKeep mastered audio %s as listeners seek and switch presets.", keyword("one step ahead")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" && cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))

	// Detect terminal width
	if !cmd.Flags().Changed("width") {
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}
			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

// loadConfig decodes the merged file, env and flag configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// snapshotPath resolves where learned predictor state is kept.
func snapshotPath(cfg config.Config) (string, error) {
	if cfg.Predictor.Snapshot != "" {
		return expandPath(cfg.Predictor.Snapshot), nil
	}
	path, err := gap.NewScope(gap.User, "tiercache").DataPath("predictor.snap")
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return path, nil
}

// expandPath replaces a leading ~ with the home directory.
func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

func main() {
	rt, err := config.LoadRuntime()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	runtimeEnv = rt

	closer, err := setupLog(rt)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().UintVarP(&width, "width", "w", 0, "output width (set to 0 to detect)")

	rootCmd.AddCommand(configCmd, manCmd, simulateCmd, watchCmd, statsCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	config.Bind(viper.GetViper())

	scope := gap.NewScope(gap.User, "tiercache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "tiercache")}, dirs...)
	}

	if c := os.Getenv("TIERCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("tiercache")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "tiercache.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
