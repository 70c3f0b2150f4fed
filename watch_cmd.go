package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/auralis/tiercache/internal/library"
	"github.com/auralis/tiercache/internal/metrics"
	"github.com/auralis/tiercache/internal/preset"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errBadCommand = errors.New("bad command")

var (
	watchInterval time.Duration
	watchStdin    bool

	watchCmd = &cobra.Command{
		Use:   "watch DIR...",
		Short: "Run the cache against a music library",
		Long: paragraph(fmt.Sprintf("\n%s library directories for deleted and modified tracks, serve Prometheus metrics and read playback updates from stdin:\n\n"+
			"  play TRACK POSITION PRESET [INTENSITY]\n"+
			"  lookup TRACK CHUNK PRESET [INTENSITY]\n"+
			"  stats\n"+
			"  clear\n\n"+
			"TRACK is a track id or a file path.",
			keyword("Watch"))),
		Example: paragraph("tiercache watch ~/Music --metrics-addr :9090"),
		Args:    cobra.MinimumNArgs(1),
		RunE:    runWatch,
	}
)

func init() {
	watchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "how often to log cache statistics (0 disables)")
	watchCmd.Flags().BoolVar(&watchStdin, "stdin", true, "read playback commands from stdin")
	_ = viper.BindPFlag("metrics.addr", watchCmd.Flags().Lookup("metrics-addr"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index := library.NewIndex(cfg.Library.Extensions...)
	var dirs []string
	for _, root := range args {
		d, added, err := index.Scan(expandPath(root))
		if err != nil {
			return err
		}
		log.Info("Scanned library", "dir", root, "tracks", added, "dirs", len(d))
		dirs = append(dirs, d...)
	}

	collector, err := metrics.New(cfg.Metrics.Namespace)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, "", nil, buffer.WithMetrics(collector), buffer.WithPathResolver(index))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Error("Could not save predictor state", "error", err)
		}
	}()

	w, err := library.NewWatcher(index, a.manager, library.WithLogger(log.Default()))
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return err
		}
	}
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Library watcher stopped", "error", err)
		}
	}()
	defer w.Close() //nolint:errcheck

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(collector),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("Serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if watchInterval > 0 {
		go logStats(ctx, a.manager, watchInterval)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %d tracks in %d directories.\n", index.Len(), len(dirs))

	if watchStdin {
		go func() {
			readCommands(ctx, a.manager, index, cmd.InOrStdin(), out)
			// stdin closed; keep running until signalled
		}()
	}

	<-ctx.Done()
	return nil
}

func metricsMux(c *metrics.Collector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return mux
}

func logStats(ctx context.Context, m *buffer.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.CacheStats()
			log.Info("Cache statistics",
				"size", mb(s.TotalSizeMB),
				"entries", s.TotalEntries,
				"hit_rate", percent(s.HitRate),
				"accuracy", percent(s.PredictionAccuracy),
				"switches", s.SessionSwitches)
		}
	}
}

// trackResolver maps a path to a track id.
type trackResolver interface {
	Lookup(path string) (int64, bool)
}

// readCommands applies line commands from r until it is exhausted or ctx ends.
func readCommands(ctx context.Context, m *buffer.Manager, tracks trackResolver, r io.Reader, w io.Writer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := runCommand(ctx, m, tracks, line, w); err != nil {
			fmt.Fprintln(w, render(missStyle, err.Error()))
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("Could not read commands", "error", err)
	}
}

func runCommand(ctx context.Context, m *buffer.Manager, tracks trackResolver, line string, w io.Writer) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "play":
		if len(fields) < 4 || len(fields) > 5 {
			return fmt.Errorf("%w: usage: play TRACK POSITION PRESET [INTENSITY]", errBadCommand)
		}
		track, err := parseTrack(tracks, fields[1])
		if err != nil {
			return err
		}
		pos, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Errorf("%w: position %q", errBadCommand, fields[2])
		}
		p, intensity, err := parsePresetArgs(fields[3:])
		if err != nil {
			return err
		}
		m.UpdatePosition(ctx, track, pos, p, intensity)
		return nil

	case "lookup":
		if len(fields) < 4 || len(fields) > 5 {
			return fmt.Errorf("%w: usage: lookup TRACK CHUNK PRESET [INTENSITY]", errBadCommand)
		}
		track, err := parseTrack(tracks, fields[1])
		if err != nil {
			return err
		}
		chunk, err := strconv.Atoi(fields[2])
		if err != nil || chunk < 0 {
			return fmt.Errorf("%w: chunk %q", errBadCommand, fields[2])
		}
		p, intensity, err := parsePresetArgs(fields[3:])
		if err != nil {
			return err
		}
		if hit, tier := m.IsChunkCached(track, p, chunk, intensity); hit {
			fmt.Fprintln(w, render(hitStyle, "hit "+tier))
		} else {
			fmt.Fprintln(w, render(missStyle, "miss"))
		}
		return nil

	case "stats":
		fmt.Fprintln(w, renderStats(m.CacheStats(), int(width))) //nolint:gosec
		return nil

	case "clear":
		m.ClearAllCaches()
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errBadCommand, fields[0])
}

func parseTrack(tracks trackResolver, s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	if tracks != nil {
		if id, ok := tracks.Lookup(expandPath(s)); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown track %q", errBadCommand, s)
}

func parsePresetArgs(args []string) (preset.Preset, float64, error) {
	p, err := preset.Parse(args[0])
	if err != nil {
		return preset.None, 0, err
	}
	intensity := 1.0
	if len(args) > 1 {
		if intensity, err = strconv.ParseFloat(args[1], 64); err != nil {
			return preset.None, 0, fmt.Errorf("%w: intensity %q", errBadCommand, args[1])
		}
	}
	return p, intensity, nil
}
