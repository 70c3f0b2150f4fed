package main

import (
	"fmt"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/auralis/tiercache/internal/config"
	"github.com/auralis/tiercache/internal/content"
	"github.com/auralis/tiercache/internal/predictor"
	"github.com/charmbracelet/log"
)

// app bundles a manager with the collaborators built from configuration.
type app struct {
	cfg       config.Config
	manager   *buffer.Manager
	predictor *predictor.BranchPredictor
	content   *content.Predictor
	snapshot  string // empty when learning is not persisted
}

// newApp builds a manager from cfg. now may be nil for wall time. Extra
// options are applied last, so a caller can inject metrics or a path resolver.
func newApp(cfg config.Config, snapshotOverride string, now func() time.Time, opts ...buffer.Option) (*app, error) {
	if now == nil {
		now = time.Now
	}
	a := &app{cfg: cfg}
	a.predictor = predictor.New(predictor.WithClock(now), predictor.WithLogger(log.Default()))

	if cfg.Predictor.Persist || snapshotOverride != "" {
		path := snapshotOverride
		if path == "" {
			var err error
			if path, err = snapshotPath(cfg); err != nil {
				return nil, err
			}
		}
		if err := a.predictor.LoadSnapshot(path); err != nil {
			return nil, fmt.Errorf("unable to load predictor snapshot: %w", err)
		}
		a.snapshot = path
	}

	base := []buffer.Option{
		buffer.WithConfig(cfg.Buffer()),
		buffer.WithClock(now),
		buffer.WithLogger(log.Default()),
		buffer.WithPredictor(a.predictor),
	}
	if cfg.Content.Enabled {
		a.content = content.New(content.SidecarScorer{},
			content.WithRateLimit(cfg.Content.RequestsPerSecond, cfg.Content.Burst),
			content.WithLogger(log.Default()))
		base = append(base,
			buffer.WithContentPredictor(a.content),
			buffer.WithContentInvalidator(a.content))
	}

	a.manager = buffer.New(append(base, opts...)...)
	return a, nil
}

// close persists learned switches.
func (a *app) close() error {
	if a.snapshot == "" {
		return nil
	}
	if err := a.manager.Predictor().SaveSnapshot(a.snapshot); err != nil {
		return fmt.Errorf("unable to save predictor snapshot: %w", err)
	}
	return nil
}
