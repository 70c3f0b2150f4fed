package content

import (
	"context"
	"fmt"
	"os"

	"github.com/auralis/tiercache/internal/preset"
	"gopkg.in/yaml.v3"
)

// SidecarSuffix is appended to an audio path to find its score file.
const SidecarSuffix = ".scores.yaml"

// SidecarScorer reads precomputed scores from a YAML file next to each audio
// file, for example track.flac.scores.yaml:
//
//	default:
//	  adaptive: 0.6
//	  warm: 0.3
//	chunks:
//	  4:
//	    punchy: 0.9
//
// Chunk-specific scores override the defaults preset by preset.
type SidecarScorer struct{}

type sidecarFile struct {
	Default map[string]float64         `yaml:"default"`
	Chunks  map[int]map[string]float64 `yaml:"chunks"`
}

// Score implements Scorer.
func (SidecarScorer) Score(ctx context.Context, path string, chunk int) (map[preset.Preset]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path + SidecarSuffix)
	if err != nil {
		return nil, fmt.Errorf("unable to read score file: %w", err)
	}

	var f sidecarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unable to parse score file: %w", err)
	}

	scores := make(map[preset.Preset]float64)
	if err := mergeScores(scores, f.Default); err != nil {
		return nil, err
	}
	if err := mergeScores(scores, f.Chunks[chunk]); err != nil {
		return nil, err
	}
	return scores, nil
}

func mergeScores(dst map[preset.Preset]float64, src map[string]float64) error {
	for name, score := range src {
		p, err := preset.Parse(name)
		if err != nil {
			return err
		}
		if score < 0 || score > 1 {
			return fmt.Errorf("score for %s must be between 0 and 1, got %.2f", p, score)
		}
		dst[p] = score
	}
	return nil
}
