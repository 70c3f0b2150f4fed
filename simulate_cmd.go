package main

import (
	"fmt"
	"os"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/spf13/cobra"
)

var (
	simSnapshot string
	simQuiet    bool

	simulateCmd = &cobra.Command{
		Use:   "simulate SCRIPT",
		Short: "Replay a scripted listening session against the cache",
		Long: paragraph(fmt.Sprintf("\n%s a YAML script of playback updates and chunk lookups on a scripted clock, then print cache statistics.",
			keyword("Replay"))),
		Example: paragraph("tiercache simulate session.yaml\ntiercache simulate session.yaml --snapshot learned.snap"),
		Args:    cobra.ExactArgs(1),
		RunE:    runSimulate,
	}
)

func init() {
	simulateCmd.Flags().StringVar(&simSnapshot, "snapshot", "", "load and save predictor learning from this file")
	simulateCmd.Flags().BoolVarP(&simQuiet, "quiet", "q", false, "only print the final statistics")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	s, err := readScript(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// A simulation only touches the snapshot it is pointed at.
	cfg.Predictor.Persist = false

	clock := newScriptClock(time.Now())
	a, err := newApp(cfg, simSnapshot, clock.Now, buffer.WithPathResolver(s.Tracks))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	lines := out
	if simQuiet {
		lines = nopWriter{}
	}

	res, err := runScript(cmd.Context(), a.manager, clock, s, lines)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d lookups, %d hits\n\n", res.Lookups, res.Hits)
	fmt.Fprintln(out, renderStats(a.manager.CacheStats(), int(width))) //nolint:gosec

	if err := a.close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
