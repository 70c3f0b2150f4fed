package predictor

import (
	"context"

	"github.com/auralis/tiercache/internal/preset"
)

const (
	// UserWeight is the share of listener behaviour in a blended prediction.
	UserWeight = 0.7

	// AudioWeight is the share of acoustic content scores in a blended prediction.
	AudioWeight = 0.3
)

// ContentPredictor scores presets from the audio content of a chunk.
type ContentPredictor interface {
	PredictPresetForChunk(ctx context.Context, path string, chunk int) (map[preset.Preset]float64, error)
	Combine(user []Prediction, audio map[preset.Preset]float64, userWeight, audioWeight float64) []Prediction
}

// PredictNextPresetsWithContent blends behavioural predictions with content
// scores for the chunk at path. Any failure of the content predictor falls
// back to PredictNextPresets.
func (p *BranchPredictor) PredictNextPresetsWithContent(
	ctx context.Context,
	cp ContentPredictor,
	current preset.Preset,
	topN int,
	path string,
	chunk int,
) []Prediction {
	if cp == nil || path == "" {
		return p.PredictNextPresets(current, topN)
	}

	// Rank every candidate so content can promote a preset behaviour ranks low.
	user := p.PredictNextPresets(current, len(preset.All))

	scores, err := cp.PredictPresetForChunk(ctx, path, chunk)
	if err != nil {
		p.logger.Debug("Content prediction unavailable, using behaviour only",
			"path", path, "chunk", chunk, "err", err)
		return truncate(user, topN)
	}

	combined := cp.Combine(user, scores, UserWeight, AudioWeight)
	out := make([]Prediction, 0, len(combined))
	for _, pred := range combined {
		if pred.Preset == current || !pred.Preset.Valid() {
			continue
		}
		out = append(out, pred)
	}
	return truncate(out, topN)
}

func truncate(preds []Prediction, n int) []Prediction {
	if n < 0 {
		n = 0
	}
	if len(preds) > n {
		return preds[:n]
	}
	return preds
}
