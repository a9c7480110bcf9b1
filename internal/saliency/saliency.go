// Package saliency computes input-gradient saliency maps for multi-level
// classifiers.
//
// For every level the predicted class score is back-propagated to the input
// image; the absolute gradient of the first input channel is accumulated with
// weight 1/numLevels and the sum is min-max normalized to [0,1].
package saliency

import (
	"fmt"

	"github.com/born-ml/spinesight/internal/apperr"
	"github.com/born-ml/spinesight/internal/autodiff"
	"github.com/born-ml/spinesight/internal/backbone"
	"github.com/born-ml/spinesight/internal/classifier"
	"github.com/born-ml/spinesight/internal/tensor"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// Map is a single-channel saliency map in row-major order with values in [0,1].
type Map struct {
	Width  int
	Height int
	Data   []float64

	// Degenerate is set when the accumulated gradient was constant and the
	// map was replaced by zeros.
	Degenerate bool
}

// At returns the value at column x, row y.
func (m *Map) At(x, y int) float64 {
	return m.Data[y*m.Width+x]
}

// Min reports the smallest value.
func (m *Map) Min() float64 { return floats.Min(m.Data) }

// Max reports the largest value.
func (m *Map) Max() float64 { return floats.Max(m.Data) }

// Explain computes the combined saliency map of c for input [1, C, H, W].
//
// The pass runs on a private autodiff backend and a private copy of input,
// so concurrent calls sharing c never share gradient state and input is left
// untouched. A flat accumulated map yields an all-zero Map with Degenerate set.
func Explain(c *classifier.Classifier, input *tensor.Tensor) (*Map, error) {
	x := input.Clone().RequireGrad()

	ad := autodiff.New(c.Backend())
	tape := ad.Tape()
	tape.StartRecording()
	logits, err := c.Forward(ad, x)
	tape.StopRecording()
	if err != nil {
		return nil, err
	}

	_, _, h, w := x.Shape().NCHW()
	acc := make([]float64, h*w)
	scores := classifier.LogitsOf(logits)
	weight := 1.0 / float64(backbone.NumLevels)

	for level := range scores {
		target := classifier.ArgMax(scores[level])

		seed := tensor.ZerosLike(logits)
		seed.Set(1, 0, level, target)

		x.ZeroGrad()
		tape.Backward(logits, seed, ad.Inner())
		grad := x.Grad()
		if grad == nil {
			return nil, fmt.Errorf("saliency: no gradient reached the input for level %s", backbone.Levels[level])
		}
		accumulateAbs(acc, grad.Data()[:h*w], weight)
	}

	m := &Map{Width: w, Height: h, Data: acc}
	if err := normalize(m.Data); err != nil {
		log.Warn().Err(err).Str("architecture", string(c.Architecture())).Msg("saliency map is flat, returning zero map")
		for i := range m.Data {
			m.Data[i] = 0
		}
		m.Degenerate = true
	}
	return m, nil
}

// accumulateAbs adds weight*|grad| to acc.
func accumulateAbs(acc []float64, grad []float32, weight float64) {
	for i, g := range grad {
		if g < 0 {
			g = -g
		}
		acc[i] += weight * float64(g)
	}
}

// normalize rescales data in place to [0,1]. It fails with
// apperr.ErrDegenerateSaliency when data has zero range.
func normalize(data []float64) error {
	lo, hi := floats.Min(data), floats.Max(data)
	span := hi - lo
	if !(span > 0) {
		return apperr.Newf(apperr.ErrDegenerateSaliency, "saliency.normalize", "min = max = %g", lo)
	}
	for i, v := range data {
		data[i] = (v - lo) / span
	}
	return nil
}
