// Package content adapts an acoustic scoring model into preset predictions
// for individual chunks. Results are cached per file and chunk so that the
// cache refresh path does not re-run analysis on every position update.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/auralis/tiercache/internal/predictor"
	"github.com/auralis/tiercache/internal/preset"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Errors returned by the content predictor.
var (
	// ErrNoScorer indicates the predictor was built without a scoring model.
	ErrNoScorer = errors.New("no content scorer configured")

	// ErrNoScores indicates the scorer had nothing to say about a chunk.
	ErrNoScores = errors.New("no content scores for chunk")
)

// DefaultRequestsPerSecond bounds how often the scorer is invoked.
const DefaultRequestsPerSecond = 20

// Scorer is the acoustic model boundary: it rates how well each preset suits
// one chunk of an audio file.
type Scorer interface {
	Score(ctx context.Context, path string, chunk int) (map[preset.Preset]float64, error)
}

// Predictor scores chunks through a Scorer and keeps the results in an
// analysis cache keyed "{path}_{chunk}".
type Predictor struct {
	scorer  Scorer
	limiter *rate.Limiter
	logger  *log.Logger

	mu       sync.Mutex
	analysis map[string]map[preset.Preset]float64

	// Metrics
	stats struct {
		Hits          int64
		Misses        int64
		Failures      int64
		Invalidations int64
	}
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithRateLimit caps scorer calls at perSecond with the given burst. A
// non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Predictor) {
		if burst < 1 {
			burst = 1
		}
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, burst)
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/perSecond)), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a content predictor around scorer.
func New(scorer Scorer, opts ...Option) *Predictor {
	p := &Predictor{
		scorer:   scorer,
		limiter:  rate.NewLimiter(rate.Every(time.Second/DefaultRequestsPerSecond), 1),
		logger:   log.Default(),
		analysis: make(map[string]map[preset.Preset]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func analysisKey(path string, chunk int) string {
	return fmt.Sprintf("%s_%d", path, chunk)
}

// PredictPresetForChunk returns per-preset suitability scores for a chunk.
func (p *Predictor) PredictPresetForChunk(ctx context.Context, path string, chunk int) (map[preset.Preset]float64, error) {
	key := analysisKey(path, chunk)

	p.mu.Lock()
	if scores, ok := p.analysis[key]; ok {
		p.stats.Hits++
		p.mu.Unlock()
		return copyScores(scores), nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	if p.scorer == nil {
		return nil, ErrNoScorer
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	scores, err := p.scorer.Score(ctx, path, chunk)
	if err != nil {
		p.mu.Lock()
		p.stats.Failures++
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to score %s chunk %d: %w", path, chunk, err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: %s chunk %d", ErrNoScores, path, chunk)
	}

	p.mu.Lock()
	p.analysis[key] = copyScores(scores)
	p.mu.Unlock()

	return scores, nil
}

// Combine merges behavioural predictions with content scores using the given
// weights. Presets present in either input appear in the result, ranked by
// descending combined score.
func (p *Predictor) Combine(user []predictor.Prediction, audio map[preset.Preset]float64, userWeight, audioWeight float64) []predictor.Prediction {
	return Combine(user, audio, userWeight, audioWeight)
}

// Combine is the stateless form of (*Predictor).Combine.
func Combine(user []predictor.Prediction, audio map[preset.Preset]float64, userWeight, audioWeight float64) []predictor.Prediction {
	merged := make(map[preset.Preset]float64, len(preset.All))
	for _, u := range user {
		merged[u.Preset] += u.Probability * userWeight
	}
	for pr, score := range audio {
		merged[pr] += score * audioWeight
	}

	out := make([]predictor.Prediction, 0, len(merged))
	for _, pr := range preset.All {
		if score, ok := merged[pr]; ok {
			out = append(out, predictor.Prediction{Preset: pr, Probability: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}

// InvalidateFile drops every cached analysis of path and returns how many
// chunks were dropped.
func (p *Predictor) InvalidateFile(path string) int {
	prefix := path + "_"

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for key := range p.analysis {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		// Only an exact "{path}_{chunk}" match, not a longer file name.
		if _, err := strconv.Atoi(rest); err != nil {
			continue
		}
		delete(p.analysis, key)
		removed++
	}
	p.stats.Invalidations += int64(removed)

	if removed > 0 {
		p.logger.Debug("Invalidated content analysis", "path", path, "chunks", removed)
	}
	return removed
}

// Len returns the number of cached analyses.
func (p *Predictor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.analysis)
}

// Stats summarises analysis cache activity.
type Stats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Failures      int64
	Invalidations int64
}

// Stats returns analysis cache statistics.
func (p *Predictor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Entries:       len(p.analysis),
		Hits:          p.stats.Hits,
		Misses:        p.stats.Misses,
		Failures:      p.stats.Failures,
		Invalidations: p.stats.Invalidations,
	}
}

func copyScores(in map[preset.Preset]float64) map[preset.Preset]float64 {
	out := make(map[preset.Preset]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
