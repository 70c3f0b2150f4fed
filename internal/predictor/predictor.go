// Package predictor learns how a listener moves between mastering presets
// and turns that history into ranked preset predictions and speculative
// branch scenarios for the chunk cache.
package predictor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/auralis/tiercache/internal/preset"
	"github.com/charmbracelet/log"
)

const (
	// HistorySize is the number of recent switches kept for the recency bonus.
	HistorySize = 100

	// RecencyWindow is how far back a switch still earns the recency bonus.
	RecencyWindow = 300 * time.Second

	// RecencyBoost multiplies the score of recently chosen presets.
	RecencyBoost = 1.5

	// ContinueProbability is the fixed weight of the keep-listening scenario.
	ContinueProbability = 0.6

	// SwitchWeight scales predicted switch probabilities into scenario weights.
	SwitchWeight = 0.3

	// SeekProbability is the fixed weight of the seek-forward scenario.
	SeekProbability = 0.05

	// SeekThreshold is the playback position (seconds) past which seeking
	// forward is considered plausible.
	SeekThreshold = 120.0

	// SwitchScenarios is the number of switch scenarios produced per call.
	SwitchScenarios = 3
)

// Prediction is a ranked preset guess. Probability is a ranking score: after
// the recency bonus the values of one result need not sum to 1.
type Prediction struct {
	Preset      preset.Preset
	Probability float64
}

// ChunkRange is the half-open chunk interval [Start, End).
type ChunkRange struct {
	Start int
	End   int
}

// Len returns the number of chunks in the range.
func (r ChunkRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// BranchScenario is a speculative hypothesis about upcoming playback.
type BranchScenario struct {
	Name        string
	Preset      preset.Preset
	Chunks      ChunkRange
	Probability float64
	CreatedAt   time.Time
}

// Transition is a directed preset switch.
type Transition struct {
	From preset.Preset
	To   preset.Preset
}

// Switch is one observed switch and when it happened.
type Switch struct {
	From preset.Preset
	To   preset.Preset
	At   time.Time
}

// BranchPredictor learns preset transitions. It is safe for concurrent use.
type BranchPredictor struct {
	mu sync.Mutex

	transitions map[Transition]int

	// recent is a ring of the last HistorySize switches.
	recent     [HistorySize]Switch
	recentHead int
	recentLen  int

	predictionsMade    int64
	predictionsCorrect int64

	now    func() time.Time
	logger *log.Logger
}

// Option configures a BranchPredictor.
type Option func(*BranchPredictor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *BranchPredictor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *BranchPredictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a predictor with no learned history.
func New(opts ...Option) *BranchPredictor {
	p := &BranchPredictor{
		transitions: make(map[Transition]int),
		now:         time.Now,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RecordSwitch learns one switch from -> to.
func (p *BranchPredictor) RecordSwitch(from, to preset.Preset) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transitions[Transition{From: from, To: to}]++
	p.pushLocked(Switch{From: from, To: to, At: p.now()})

	p.logger.Debug("Recorded preset switch", "from", from, "to", to,
		"count", p.transitions[Transition{From: from, To: to}])
}

func (p *BranchPredictor) pushLocked(s Switch) {
	idx := (p.recentHead + p.recentLen) % HistorySize
	if p.recentLen == HistorySize {
		// Full: overwrite the oldest and advance the head.
		p.recent[p.recentHead] = s
		p.recentHead = (p.recentHead + 1) % HistorySize
		return
	}
	p.recent[idx] = s
	p.recentLen++
}

// RecentSwitches returns the remembered switches, oldest first.
func (p *BranchPredictor) RecentSwitches() []Switch {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.recentLocked()
}

func (p *BranchPredictor) recentLocked() []Switch {
	out := make([]Switch, 0, p.recentLen)
	for i := 0; i < p.recentLen; i++ {
		out = append(out, p.recent[(p.recentHead+i)%HistorySize])
	}
	return out
}

// TransitionCount returns how often from -> to has been observed.
func (p *BranchPredictor) TransitionCount(from, to preset.Preset) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.transitions[Transition{From: from, To: to}]
}

// PredictNextPresets ranks the presets the listener is most likely to switch
// to from current. With no observed switches from current the prior
// distribution is used, minus current itself.
func (p *BranchPredictor) PredictNextPresets(current preset.Preset, topN int) []Prediction {
	if topN <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.predictLocked(current, topN)
}

func (p *BranchPredictor) predictLocked(current preset.Preset, topN int) []Prediction {
	total := 0
	for t, n := range p.transitions {
		if t.From == current {
			total += n
		}
	}

	preds := make([]Prediction, 0, len(preset.All))
	if total == 0 {
		for _, candidate := range preset.All {
			if candidate == current {
				continue
			}
			preds = append(preds, Prediction{Preset: candidate, Probability: preset.Prior[candidate]})
		}
		return rank(preds, topN)
	}

	boosted := make(map[preset.Preset]bool)
	cutoff := p.now().Add(-RecencyWindow)
	for _, s := range p.recentLocked() {
		if s.From == current && !s.At.Before(cutoff) {
			boosted[s.To] = true
		}
	}

	for _, candidate := range preset.All {
		n := p.transitions[Transition{From: current, To: candidate}]
		if n == 0 {
			continue
		}
		prob := float64(n) / float64(total)
		if boosted[candidate] {
			prob *= RecencyBoost
		}
		preds = append(preds, Prediction{Preset: candidate, Probability: prob})
	}
	return rank(preds, topN)
}

// rank sorts by descending probability, keeping preset order on ties, and
// truncates to topN.
func rank(preds []Prediction, topN int) []Prediction {
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Probability > preds[j].Probability
	})
	if len(preds) > topN {
		preds = preds[:topN]
	}
	return preds
}

// PredictBranches produces the speculative scenarios for the chunks around
// currentChunk: keep listening, switch to one of the top predicted presets,
// and (past SeekThreshold seconds) seek forward.
func (p *BranchPredictor) PredictBranches(current preset.Preset, currentChunk int, position float64) []BranchScenario {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	scenarios := []BranchScenario{{
		Name:        fmt.Sprintf("continue_%s", current),
		Preset:      current,
		Chunks:      ChunkRange{Start: currentChunk + 2, End: currentChunk + 5},
		Probability: ContinueProbability,
		CreatedAt:   now,
	}}

	for i, pred := range p.predictLocked(current, SwitchScenarios) {
		scenarios = append(scenarios, BranchScenario{
			Name:        fmt.Sprintf("switch_to_%s", pred.Preset),
			Preset:      pred.Preset,
			Chunks:      ChunkRange{Start: currentChunk + 1, End: currentChunk + 3},
			Probability: pred.Probability * SwitchWeight / float64(i+1),
			CreatedAt:   now,
		})
	}

	if position > SeekThreshold {
		scenarios = append(scenarios, BranchScenario{
			Name:        "seek_forward",
			Preset:      current,
			Chunks:      ChunkRange{Start: currentChunk + 10, End: currentChunk + 12},
			Probability: SeekProbability,
			CreatedAt:   now,
		})
	}

	return scenarios
}

// UpdateAccuracy records the outcome of one prediction.
func (p *BranchPredictor) UpdateAccuracy(wasCorrect bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.predictionsMade++
	if wasCorrect {
		p.predictionsCorrect++
	}
}

// Accuracy returns correct/made, or 0 when nothing has been scored yet.
func (p *BranchPredictor) Accuracy() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.predictionsMade == 0 {
		return 0
	}
	return float64(p.predictionsCorrect) / float64(p.predictionsMade)
}

// Predictions returns the made and correct counters.
func (p *BranchPredictor) Predictions() (made, correct int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.predictionsMade, p.predictionsCorrect
}
