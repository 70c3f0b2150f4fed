package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/auralis/tiercache/internal/predictor"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	statsSnapshot string

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show what the predictor has learned",
		Long: paragraph(fmt.Sprintf("\nPrint the %s and prediction accuracy kept in the predictor snapshot.",
			keyword("preset transitions"))),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := statsSnapshot
			if path == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if path, err = snapshotPath(cfg); err != nil {
					return err
				}
			}

			s, err := predictor.ReadSnapshot(path)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No predictor snapshot at %s yet.\n", path)
				return nil
			}
			if err != nil {
				return err
			}
			writeSnapshot(cmd.OutOrStdout(), path, s)
			return nil
		},
	}
)

func init() {
	statsCmd.Flags().StringVar(&statsSnapshot, "snapshot", "", "snapshot file (default: the data directory)")
}

func writeSnapshot(w io.Writer, path string, s predictor.Snapshot) {
	var b strings.Builder

	b.WriteString(render(headerStyle, "Predictor") + "\n")
	fmt.Fprintf(&b, "%s %s\n", render(labelStyle, "snapshot:"), path)
	fmt.Fprintf(&b, "%s %s\n", render(labelStyle, "saved:   "), humanize.Time(s.SavedAt))

	made, correct := s.PredictionsMade, s.PredictionsCorrect
	accuracy := 0.0
	if made > 0 {
		accuracy = float64(correct) / float64(made)
	}
	fmt.Fprintf(&b, "%s %s of %s (%s)\n", render(labelStyle, "correct: "),
		humanize.Comma(correct), humanize.Comma(made), percent(accuracy))

	b.WriteString("\n")
	if len(s.Transitions) == 0 {
		b.WriteString("No preset switches learned yet.\n")
	} else {
		var total int
		for _, t := range s.Transitions {
			total += t.Count
		}
		fmt.Fprintf(&b, "%-10s %-10s %8s %7s\n", "from", "to", "count", "share")
		for _, t := range s.Transitions {
			fmt.Fprintf(&b, "%-10s %-10s %8s %7s\n", t.From, t.To,
				humanize.Comma(int64(t.Count)), percent(float64(t.Count)/float64(total)))
		}
	}
	fmt.Fprintf(&b, "\n%s %d\n", render(labelStyle, "recent switches:"), len(s.Recent))

	fmt.Fprintln(w, strings.TrimRight(b.String(), "\n"))
}
