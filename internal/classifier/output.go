package classifier

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/spinesight/internal/backbone"
	"github.com/born-ml/spinesight/internal/tensor"
	"gonum.org/v1/gonum/floats"
)

// MultiLevelOutput holds one row of class scores per level.
type MultiLevelOutput [backbone.NumLevels][backbone.NumClasses]float32

// LevelPrediction is the decision for one level.
type LevelPrediction struct {
	Class         string                        `json:"class"`
	ClassIndex    int                           `json:"class_index"`
	Confidence    float64                       `json:"confidence"`
	Probabilities [backbone.NumClasses]float64 `json:"probabilities"`
}

// PredictionResult maps level names ("L1/L2" ... "L5/S1") to decisions.
type PredictionResult map[string]LevelPrediction

// LogitsOf copies a [1, NumLevels, NumClasses] tensor into a MultiLevelOutput.
func LogitsOf(t *tensor.Tensor) MultiLevelOutput {
	var out MultiLevelOutput
	data := t.Data()
	for l := range out {
		for c := range out[l] {
			out[l][c] = data[l*backbone.NumClasses+c]
		}
	}
	return out
}

// Softmax normalizes each level's scores independently. Each row of the
// result sums to 1 within float32 rounding.
func Softmax(logits MultiLevelOutput) MultiLevelOutput {
	var out MultiLevelOutput
	row := make([]float64, backbone.NumClasses)
	for l := range logits {
		for c, v := range logits[l] {
			row[c] = float64(v)
		}
		lse := floats.LogSumExp(row)
		for c := range row {
			out[l][c] = float32(math.Exp(row[c] - lse))
		}
	}
	return out
}

// ArgMax returns the index of the largest score of a level; ties resolve to
// the lowest index.
func ArgMax(scores [backbone.NumClasses]float32) int {
	best := 0
	for c := 1; c < len(scores); c++ {
		if scores[c] > scores[best] {
			best = c
		}
	}
	return best
}

// Predictions converts probabilities into labelled per-level decisions.
func Predictions(probs MultiLevelOutput) PredictionResult {
	result := make(PredictionResult, backbone.NumLevels)
	for l, level := range backbone.Levels {
		idx := ArgMax(probs[l])
		p := LevelPrediction{
			Class:      backbone.Classes[idx],
			ClassIndex: idx,
			Confidence: float64(probs[l][idx]),
		}
		for c, v := range probs[l] {
			p.Probabilities[c] = float64(v)
		}
		result[level] = p
	}
	return result
}

// Format renders one "L1/L2: Severe (confidence 0.87)" line per level in
// anatomical order.
func Format(pr PredictionResult) string {
	var b strings.Builder
	for _, level := range backbone.Levels {
		p, ok := pr[level]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %s (confidence %.2f)\n", level, p.Class, p.Confidence)
	}
	return b.String()
}
